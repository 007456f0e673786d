package ops

import (
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
)

var builtins = []struct {
	name    string
	handler dispatch.Handler[*State]
}{
	// runtime
	{"op_start", opStart},
	{"op_metrics", opMetrics},
	{"op_version_satisfies", opVersionSatisfies},
	{"op_os_release", opOSRelease},
	{"op_random_uuid", opRandomUUID},
	{"op_close", opClose},
	{"op_resources", opResources},

	// fs
	{"op_read_file", opReadFile},
	{"op_read_text_file", opReadTextFile},
	{"op_write_file", opWriteFile},
	{"op_stat", opStat},
	{"op_read_dir", opReadDir},
	{"op_mkdir", opMkdir},
	{"op_remove", opRemove},
	{"op_walk", opWalk},
	{"op_glob", opGlob},
	{"op_fs_watch", opFsWatch},
	{"op_fs_events_poll", opFsEventsPoll},

	// timers and signals
	{"op_global_timer", opGlobalTimer},
	{"op_signal_bind", opSignalBind},
	{"op_signal_poll", opSignalPoll},
	{"op_signal_unbind", opSignalUnbind},

	// net
	{"op_fetch", opFetch},
	{"op_download", opDownload},

	// text and data
	{"op_html_sanitize", opHTMLSanitize},
	{"op_html_select", opHTMLSelect},
	{"op_html_xpath", opHTMLXPath},
	{"op_parse_yaml", opParseYAML},
	{"op_stringify_yaml", opStringifyYAML},
	{"op_parse_toml", opParseTOML},
	{"op_detect_encoding", opDetectEncoding},
	{"op_compress", opCompress},
	{"op_decompress", opDecompress},
	{"op_hash_password", opHashPassword},
	{"op_verify_password", opVerifyPassword},
	{"op_stats", opStats},

	// process
	{"op_run", opRun},
}

// RegisterBuiltins registers every native op in a fixed order, so ids are
// stable across runs.
func RegisterBuiltins(r *Registry) {
	for _, b := range builtins {
		r.MustRegister(b.name, b.handler)
	}
}

// NewDefaultRegistry returns a registry holding the builtin ops.
func NewDefaultRegistry(opts ...dispatch.Option) *Registry {
	r := NewRegistry(opts...)
	RegisterBuiltins(r)
	return r
}
