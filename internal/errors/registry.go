package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration (C100-C109)
	// ============================================

	"C100": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Pass --config with an existing file, or drop the flag to use defaults",
	},
	"C101": {
		Category:   CategoryConfig,
		Message:    "Failed to parse configuration",
		Suggestion: "Check the file is valid YAML, JSON or TOML",
	},
	"C102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// ============================================
	// Scenario files (C110-C119)
	// ============================================

	"C110": {
		Category: CategoryScenario,
		Message:  "Cannot read scenario file",
	},
	"C111": {
		Category:   CategoryScenario,
		Message:    "Failed to parse scenario",
		Suggestion: "Scenario files are YAML documents with cells:, derived:, hosts:, watch: and steps:",
	},
	"C112": {
		Category:   CategoryScenario,
		Message:    "Unknown cell",
		Suggestion: "Declare the cell under cells: or derived: before referring to it",
	},
	"C113": {
		Category: CategoryScenario,
		Message:  "Duplicate name",
	},
	"C114": {
		Category:   CategoryScenario,
		Message:    "Unknown derived operation",
		Suggestion: "Use one of sum, product, min, max, concat, and, or, not, count",
	},
	"C115": {
		Category: CategoryScenario,
		Message:  "Value does not match cell type",
	},
	"C116": {
		Category:   CategoryScenario,
		Message:    "Invalid step",
		Suggestion: "Each step has exactly one of set, add, trig, reset, dispose, disconnect, signal, expect, log",
	},
	"C117": {
		Category:   CategoryScenario,
		Message:    "Unknown host",
		Suggestion: "Declare the host under hosts:",
	},
	"C118": {
		Category:   CategoryScenario,
		Message:    "Unknown watch",
		Suggestion: "Give the watch an id: and refer to it by that id",
	},
	"C119": {
		Category:   CategoryScenario,
		Message:    "Invalid cell declaration",
		Suggestion: "A cell declares kind: plain, spread or pulse and an initial value:",
	},

	// ============================================
	// Expectations (C120-C129)
	// ============================================

	"C120": {
		Category: CategoryExpect,
		Message:  "Cell value mismatch",
	},
	"C121": {
		Category: CategoryExpect,
		Message:  "Notification log mismatch",
	},
	"C122": {
		Category: CategoryExpect,
		Message:  "Recompute error mismatch",
	},

	// ============================================
	// Storage (C130-C139)
	// ============================================

	"C130": {
		Category: CategoryStorage,
		Message:  "Snapshot save failed",
	},
	"C131": {
		Category: CategoryStorage,
		Message:  "Snapshot restore failed",
	},
	"C132": {
		Category:   CategoryStorage,
		Message:    "Unsupported snapshot target",
		Suggestion: "Use a directory path or an s3://bucket/prefix URL",
	},

	// ============================================
	// CLI (C140-C149)
	// ============================================

	"C140": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
	"C141": {
		Category: CategoryCLI,
		Message:  "Inspector failed",
	},
	"C142": {
		Category:   CategoryCLI,
		Message:    "Scenarios failed",
		Suggestion: "Run with --verbose to see the notification log of each scenario",
	},
	"C143": {
		Category: CategoryCLI,
		Message:  "Benchmark failed",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
