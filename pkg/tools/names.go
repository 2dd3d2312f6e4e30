package tools

// Tool name constants, one per worker-visible tool SPEC_FULL.md names.
const (
	NameListDirectory   = "list_directory"
	NameReadFile        = "read_file"
	NameWriteFile       = "write_file"
	NameDeletePath      = "delete_path"
	NameCreateDirectory = "create_directory"

	NameShell         = "shell"
	NameGetSystemInfo = "get_system_info"

	NameWebSearch         = "web_search"
	NameFetchURL          = "fetch_url"
	NameReadKnowledgeBase = "read_knowledge_base"

	NameStaticAnalyze = "static_analyze"
	NameApplyPatch    = "apply_patch"
	NameRunBuild      = "run_build"
	NameRunTests      = "run_tests"
	NameGitCommit     = "git_commit"
	NameGitPush       = "git_push"
)
