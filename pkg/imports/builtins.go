package imports

import "codewright/pkg/proto"

// BuiltinPrefix is the explicit namespace prefix for platform builtins.
const BuiltinPrefix = "node:"

// NodeBuiltins lists the module names provided by the Node.js runtime.
// Importable with or without the node: prefix.
//
//nolint:gochecknoglobals // Static platform registry
var NodeBuiltins = []string{
	"assert", "assert/strict", "async_hooks", "buffer", "child_process",
	"cluster", "console", "constants", "crypto", "dgram",
	"diagnostics_channel", "dns", "dns/promises", "domain", "events",
	"fs", "fs/promises", "http", "http2", "https", "inspector", "module",
	"net", "os", "path", "path/posix", "path/win32", "perf_hooks",
	"process", "punycode", "querystring", "readline", "readline/promises",
	"repl", "stream", "stream/consumers", "stream/promises", "stream/web",
	"string_decoder", "timers", "timers/promises", "tls", "trace_events",
	"tty", "url", "util", "util/types", "v8", "vm", "wasi",
	"worker_threads", "zlib",
}

// BuiltinAlternatives maps popular third-party packages to the platform
// built-in that replaces them. Used to offer substitutions instead of
// installs.
//
//nolint:gochecknoglobals // Static platform registry
var BuiltinAlternatives = map[string]proto.AlternativeInfo{
	"axios": {
		Module:      "fetch",
		Description: "global fetch API for HTTP requests",
		Example:     "const res = await fetch(url); const data = await res.json();",
		MinVersion:  "18.0.0",
	},
	"node-fetch": {
		Module:      "fetch",
		Description: "global fetch API for HTTP requests",
		Example:     "const res = await fetch(url);",
		MinVersion:  "18.0.0",
	},
	"request": {
		Module:      "fetch",
		Description: "global fetch API for HTTP requests",
		Example:     "const res = await fetch(url, { method: 'POST', body });",
		MinVersion:  "18.0.0",
	},
	"uuid": {
		Module:      "node:crypto",
		Description: "crypto.randomUUID() generates RFC 4122 v4 UUIDs",
		Example:     "const { randomUUID } = require('node:crypto'); const id = randomUUID();",
		MinVersion:  "14.17.0",
	},
	"chalk": {
		Module:      "node:util",
		Description: "util.styleText() colors terminal output",
		Example:     "const { styleText } = require('node:util'); console.log(styleText('green', 'ok'));",
		MinVersion:  "20.12.0",
	},
	"rimraf": {
		Module:      "node:fs",
		Description: "fs.rm() with recursive and force options",
		Example:     "await fs.promises.rm(dir, { recursive: true, force: true });",
		MinVersion:  "14.14.0",
	},
	"mkdirp": {
		Module:      "node:fs",
		Description: "fs.mkdir() with the recursive option",
		Example:     "await fs.promises.mkdir(dir, { recursive: true });",
		MinVersion:  "10.12.0",
	},
	"dotenv": {
		Module:      "node:process",
		Description: "process.loadEnvFile() loads .env files natively",
		Example:     "process.loadEnvFile('.env');",
		MinVersion:  "20.12.0",
	},
	"glob": {
		Module:      "node:fs",
		Description: "fs.glob() matches files by pattern",
		Example:     "for await (const entry of fs.promises.glob('**/*.js')) { ... }",
		MinVersion:  "22.0.0",
	},
	"lodash.clonedeep": {
		Module:      "structuredClone",
		Description: "global structuredClone() deep-copies plain values",
		Example:     "const copy = structuredClone(value);",
		MinVersion:  "17.0.0",
	},
	"bluebird": {
		Module:      "Promise",
		Description: "native Promise covers bluebird's core API",
		Example:     "await Promise.allSettled(tasks);",
	},
}
