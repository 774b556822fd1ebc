package environment

import "strings"

// Environment names the deployment the process runs in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Staging     Environment = "staging"
	Test        Environment = "test"
)

// Parse maps common spellings (prod, dev, local, stage, testing) to the
// canonical values. Unknown values are returned lowercased as is.
func Parse(s string) Environment {
	switch env := strings.ToLower(strings.TrimSpace(s)); env {
	case "prod", string(Production):
		return Production
	case "dev", "local", string(Development):
		return Development
	case "stage", string(Staging):
		return Staging
	case "testing", string(Test):
		return Test
	default:
		return Environment(env)
	}
}

// Known reports whether e is one of the canonical environments.
func (e Environment) Known() bool {
	switch e {
	case Development, Production, Staging, Test:
		return true
	}
	return false
}

func (e Environment) String() string { return string(e) }
