package review

import (
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/prompt"
)

// reviewerMatrix maps each repo type to its reviewer roster.
var reviewerMatrix = map[models.RepoType][]prompt.Role{
	models.RepoTypeBackend: {
		prompt.RoleReviewerBESecurity,
		prompt.RoleReviewerBEArchitecture,
		prompt.RoleReviewerBEPerformance,
		prompt.RoleReviewerBEQuality,
	},
	models.RepoTypeFrontend: {
		prompt.RoleReviewerFESecurity,
		prompt.RoleReviewerFEArchitecture,
		prompt.RoleReviewerFEQuality,
	},
	models.RepoTypeFullstack: {
		prompt.RoleReviewerBESecurity,
		prompt.RoleReviewerBEArchitecture,
		prompt.RoleReviewerBEPerformance,
		prompt.RoleReviewerBEQuality,
		prompt.RoleReviewerFESecurity,
		prompt.RoleReviewerFEArchitecture,
		prompt.RoleReviewerFEQuality,
	},
	models.RepoTypeOther: {
		prompt.RoleReviewerGeneral,
	},
}

// SelectReviewers returns the reviewer roles for a repo type, appending the
// functional analyst when requested.
func SelectReviewers(repoType models.RepoType, includeFunctional bool) []prompt.Role {
	roles := append([]prompt.Role(nil), reviewerMatrix[repoType]...)
	if includeFunctional {
		roles = append(roles, prompt.RoleReviewerFunctional)
	}
	return roles
}
