package prompt

// Role identifies one primary-backend persona.
type Role string

// Reviewer, fixer, and judge roles.
const (
	RoleReviewerBESecurity     Role = "reviewer_be_security"
	RoleReviewerBEArchitecture Role = "reviewer_be_architecture"
	RoleReviewerBEPerformance  Role = "reviewer_be_performance"
	RoleReviewerBEQuality      Role = "reviewer_be_quality"

	RoleReviewerFESecurity     Role = "reviewer_fe_security"
	RoleReviewerFEArchitecture Role = "reviewer_fe_architecture"
	RoleReviewerFEQuality      Role = "reviewer_fe_quality"

	RoleReviewerGeneral    Role = "reviewer_general"
	RoleReviewerFunctional Role = "reviewer_functional"

	RoleFixer         Role = "fixer"
	RoleFixChallenger Role = "fix_challenger"
	RoleChallenger    Role = "challenger"
	RoleEvaluator     Role = "evaluator"
)

// roleFocus is the persona paragraph injected into reviewer prompts.
var roleFocus = map[Role]string{
	RoleReviewerBESecurity:     "You are a senior backend security reviewer. Hunt for injection, authentication and authorization gaps, secrets handling, unsafe deserialization, and race conditions with security impact.",
	RoleReviewerBEArchitecture: "You are a senior backend architecture reviewer. Assess module boundaries, coupling, error propagation, data ownership, and API design.",
	RoleReviewerBEPerformance:  "You are a senior backend performance reviewer. Look for N+1 queries, unbounded allocations, missing indexes, lock contention, and hot-path inefficiencies.",
	RoleReviewerBEQuality:      "You are a senior backend code quality reviewer. Check readability, naming, duplication, test coverage gaps, and error handling discipline.",
	RoleReviewerFESecurity:     "You are a senior frontend security reviewer. Hunt for XSS, unsafe HTML injection, token leakage, and insecure client-side storage.",
	RoleReviewerFEArchitecture: "You are a senior frontend architecture reviewer. Assess component structure, state management, rendering efficiency, and API-boundary design.",
	RoleReviewerFEQuality:      "You are a senior frontend code quality reviewer. Check readability, accessibility basics, duplication, and test coverage gaps.",
	RoleReviewerGeneral:        "You are a senior software reviewer. Review the code for correctness, clarity, and maintainability issues of any kind.",
	RoleReviewerFunctional:     "You are a functional analyst. Verify the code's behavior against its apparent intent: missing edge cases, contradictory logic, and requirements the implementation silently drops.",
}

// Focus returns the persona paragraph for a role, falling back to the
// general reviewer.
func Focus(role Role) string {
	if f, ok := roleFocus[role]; ok {
		return f
	}
	return roleFocus[RoleReviewerGeneral]
}
