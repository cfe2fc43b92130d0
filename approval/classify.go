package approval

import "strings"

// dangerousCommandFragments flags shell invocations that warrant a
// critical risk rating.
var dangerousCommandFragments = []string{
	"rm -rf", "sudo", "mkfs", "dd if=", ":(){ :|:& };:", "chmod -R 777",
	"> /dev/sd", "shutdown", "reboot",
}

// Classify returns req's own RiskLevel and Scope when the caller set
// both; otherwise it derives both heuristically from the tool name and
// target. It does not modify req.
func Classify(req Request) (RiskLevel, Scope) {
	if req.RiskLevel != "" && req.Scope.Kind != "" {
		return req.RiskLevel, req.Scope
	}

	tool := strings.ToLower(req.ToolName)
	cmd := strings.ToLower(req.Scope.Command)

	switch {
	case strings.Contains(tool, "exec") || strings.Contains(tool, "command") || strings.Contains(tool, "shell"):
		risk := RiskMedium
		for _, frag := range dangerousCommandFragments {
			if strings.Contains(cmd, frag) {
				risk = RiskCritical
				break
			}
		}
		return risk, Scope{Kind: ScopeTerminal, Command: req.Scope.Command, Cwd: req.Scope.Cwd}

	case strings.Contains(tool, "write") || strings.Contains(tool, "delete") || strings.Contains(tool, "file"):
		risk := RiskMedium
		if strings.Contains(tool, "delete") {
			risk = RiskHigh
		}
		return risk, Scope{Kind: ScopeFilesystem, Path: req.Scope.Path}

	case strings.Contains(tool, "read"):
		return RiskLow, Scope{Kind: ScopeFilesystem, Path: req.Scope.Path}

	case strings.Contains(tool, "navigate") || strings.Contains(tool, "click") || strings.Contains(tool, "browser"):
		return RiskLow, Scope{Kind: ScopeBrowser, Domain: req.Scope.Domain}

	case strings.Contains(tool, "mcp"):
		return RiskMedium, Scope{Kind: ScopeMCP, Description: req.Scope.Description}

	case strings.Contains(tool, "ui") || strings.Contains(tool, "screenshot") || strings.Contains(tool, "scroll") || strings.Contains(tool, "key"):
		return RiskLow, Scope{Kind: ScopeUI}

	default:
		return RiskMedium, Scope{Kind: ScopeUnknown, Description: req.Description}
	}
}
