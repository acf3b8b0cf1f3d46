package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeViolations(t *testing.T) {
	paths := []string{
		"packages/api/handler.go",
		"packages/api/util/strings.go",
		"packages/web/x.ts",
	}
	violations := ScopeViolations(paths, "packages/api")
	assert.Equal(t, []string{"packages/web/x.ts"}, violations)
}

func TestScopeViolationsEmptyWorkspaceAllowsAll(t *testing.T) {
	assert.Empty(t, ScopeViolations([]string{"anything/x.go", "deep/y.ts"}, ""))
}

func TestScopeViolationsPathEscapes(t *testing.T) {
	violations := ScopeViolations([]string{"../outside.go", "/etc/passwd"}, "")
	assert.Len(t, violations, 2)
}

func TestScopeViolationsExactPrefixMatch(t *testing.T) {
	// "packages/apix" must not pass a "packages/api" workspace.
	violations := ScopeViolations([]string{"packages/apix/file.go"}, "packages/api")
	assert.Equal(t, []string{"packages/apix/file.go"}, violations)
}
