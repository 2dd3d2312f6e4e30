package session

import "graphcore/pkg/tools"

// role is the static tool-set/description pairing for one of the four
// named worker roles SPEC_FULL.md's domain stack table names. Bindings
// (model, system prompt) come from config.Config; everything fixed about
// a role — which tools it may call and how the supervisor should
// describe it — lives here.
type role struct {
	description string
	toolNames   []string
}

// roles is keyed by the same worker name used in config.Config.Workers.
var roles = map[string]role{
	"filesystem": {
		description: "manages files on the local filesystem",
		toolNames: []string{
			tools.NameListDirectory, tools.NameReadFile, tools.NameWriteFile,
			tools.NameDeletePath, tools.NameCreateDirectory,
		},
	},
	"system": {
		description: "runs diagnostic and administrative shell commands on the host",
		toolNames:   []string{tools.NameShell, tools.NameGetSystemInfo},
	},
	"researcher": {
		description: "researches topics using web search and the knowledge base",
		toolNames:   []string{tools.NameWebSearch, tools.NameFetchURL, tools.NameReadKnowledgeBase},
	},
	"code": {
		description: "reads, patches, builds, tests, and commits code changes",
		toolNames: []string{
			tools.NameReadFile, tools.NameListDirectory, tools.NameStaticAnalyze,
			tools.NameApplyPatch, tools.NameRunBuild, tools.NameRunTests,
			tools.NameGitCommit, tools.NameGitPush,
		},
	},
}
