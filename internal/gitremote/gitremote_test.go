package gitremote

import "testing"

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{
			name:      "https with .git",
			url:       "https://github.com/acme/widgets.git",
			wantOwner: "acme",
			wantRepo:  "widgets",
		},
		{
			name:      "https without .git",
			url:       "https://github.com/acme/widgets",
			wantOwner: "acme",
			wantRepo:  "widgets",
		},
		{
			name:      "https with trailing slash",
			url:       "https://github.com/acme/widgets/",
			wantOwner: "acme",
			wantRepo:  "widgets",
		},
		{
			name:      "ssh scp form",
			url:       "git@github.com:acme/widgets.git",
			wantOwner: "acme",
			wantRepo:  "widgets",
		},
		{
			name:      "ssh url form",
			url:       "ssh://git@github.com/acme/widgets.git",
			wantOwner: "acme",
			wantRepo:  "widgets",
		},
		{
			name:      "git protocol",
			url:       "git://github.com/acme/widgets.git",
			wantOwner: "acme",
			wantRepo:  "widgets",
		},
		{
			name:      "self-hosted https",
			url:       "https://git.example.io/platform/core-api.git",
			wantOwner: "platform",
			wantRepo:  "core-api",
		},
		{
			name:    "local path",
			url:     "/home/user/repos/widgets",
			wantErr: true,
		},
		{
			name:    "garbage",
			url:     "not a url",
			wantErr: true,
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s/%s", owner, repo)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepoURL failed: %v", err)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantOwner, tt.wantRepo, owner, repo)
			}
		})
	}
}

func TestRepoNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widgets.git", "widgets"},
		{"git@github.com:acme/widgets.git", "widgets"},
		{"/home/user/repos/widgets", "widgets"},
		{"/home/user/repos/widgets.git", "widgets"},
		{"/home/user/repos/widgets/", "widgets"},
		{"widgets", "widgets"},
	}

	for _, tt := range tests {
		if got := RepoNameFromURL(tt.url); got != tt.want {
			t.Errorf("RepoNameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", 0)
	if c.client == nil {
		t.Fatal("expected underlying client")
	}
	if c.rateLimiter.Limit() != DefaultRateLimit {
		t.Errorf("expected default rate limit %v, got %v", float64(DefaultRateLimit), c.rateLimiter.Limit())
	}
}
