package ingestion

import (
	"path"
	"strings"
)

// nodeBuiltins are the node.js standard modules we recognise without the
// node: prefix.
var nodeBuiltins = map[string]bool{
	"assert": true, "async_hooks": true, "buffer": true, "child_process": true,
	"cluster": true, "crypto": true, "dgram": true, "dns": true, "events": true,
	"fs": true, "http": true, "http2": true, "https": true, "net": true,
	"os": true, "path": true, "perf_hooks": true, "process": true,
	"querystring": true, "readline": true, "stream": true, "string_decoder": true,
	"timers": true, "tls": true, "tty": true, "url": true, "util": true,
	"v8": true, "vm": true, "worker_threads": true, "zlib": true,
}

// pythonBuiltins are common standard-library roots. The list is not
// exhaustive; unknown modules classify as pip, which is the safer default
// for dependency reporting.
var pythonBuiltins = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"collections": true, "contextlib": true, "copy": true, "csv": true,
	"dataclasses": true, "datetime": true, "enum": true, "functools": true,
	"hashlib": true, "http": true, "importlib": true, "inspect": true,
	"io": true, "itertools": true, "json": true, "logging": true,
	"math": true, "os": true, "pathlib": true, "pickle": true, "random": true,
	"re": true, "shutil": true, "socket": true, "sqlite3": true,
	"string": true, "struct": true, "subprocess": true, "sys": true,
	"tempfile": true, "threading": true, "time": true, "traceback": true,
	"typing": true, "unittest": true, "urllib": true, "uuid": true,
	"__future__": true,
}

// isRelativeImport reports whether an import specifier points inside the
// repository rather than at an installed module.
func isRelativeImport(language, spec string) bool {
	if language == "python" {
		return strings.HasPrefix(spec, ".")
	}
	return spec == "." || spec == ".." ||
		strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// classifyModule reduces an import specifier to the owning package name
// and its provenance class. Deep specifiers collapse to their root:
// lodash/fp is lodash, @scope/pkg/sub is @scope/pkg, os.path is os.
func classifyModule(language, spec string) (name, moduleType string) {
	if language == "python" {
		name = spec
		if i := strings.IndexByte(spec, '.'); i > 0 {
			name = spec[:i]
		}
		if pythonBuiltins[name] {
			return name, "builtin"
		}
		return name, "pip"
	}

	trimmed, hadPrefix := strings.CutPrefix(spec, "node:")
	parts := strings.Split(trimmed, "/")
	name = parts[0]
	if strings.HasPrefix(trimmed, "@") && len(parts) >= 2 {
		name = parts[0] + "/" + parts[1]
	}
	if name == "" {
		return "", ""
	}
	if hadPrefix || nodeBuiltins[name] {
		return name, "builtin"
	}
	return name, "npm"
}

// resolveRelativeImport maps a relative specifier to a scanned file,
// trying the language's conventional suffixes. Unresolvable specifiers
// are dropped rather than guessed at.
func resolveRelativeImport(language, fromFile, spec string, files map[string]bool) (string, bool) {
	if language == "python" {
		return resolvePythonImport(fromFile, spec, files)
	}
	return resolveScriptImport(fromFile, spec, files)
}

var scriptSuffixes = []string{
	"", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

func resolveScriptImport(fromFile, spec string, files map[string]bool) (string, bool) {
	target := path.Join(path.Dir(fromFile), spec)
	if target == "" || strings.HasPrefix(target, "../") {
		return "", false
	}
	for _, suffix := range scriptSuffixes {
		if candidate := target + suffix; files[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// resolvePythonImport handles from-import specifiers: one leading dot is
// the current package, each further dot climbs a directory.
func resolvePythonImport(fromFile, spec string, files map[string]bool) (string, bool) {
	dots := 0
	for dots < len(spec) && spec[dots] == '.' {
		dots++
	}
	dir := path.Dir(fromFile)
	for i := 1; i < dots; i++ {
		dir = path.Dir(dir)
	}

	target := dir
	if rest := spec[dots:]; rest != "" {
		target = path.Join(dir, strings.ReplaceAll(rest, ".", "/"))
	}
	if strings.HasPrefix(target, "../") {
		return "", false
	}
	for _, candidate := range []string{target + ".py", path.Join(target, "__init__.py")} {
		if files[candidate] {
			return candidate, true
		}
	}
	return "", false
}
