package executor

// Profile describes how one supported runtime builds and runs a
// submission inside its working directory. CompileCmd may be empty for
// interpreted languages.
type Profile struct {
	SourceFile string
	CompileCmd []string
	RunCmd     []string
}

// DefaultProfiles is the closed set of runtimes the executor accepts.
// Commands are resolved against PATH at run time.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"python": {
			SourceFile: "main.py",
			RunCmd:     []string{"python3", "main.py"},
		},
		"javascript": {
			SourceFile: "main.js",
			RunCmd:     []string{"node", "main.js"},
		},
		"go": {
			SourceFile: "main.go",
			CompileCmd: []string{"go", "build", "-o", "main", "main.go"},
			RunCmd:     []string{"./main"},
		},
	}
}
