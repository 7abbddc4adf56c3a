package workflow

import "github.com/omharigupta/datasynth/internal/profile"

// DefaultQuestions is the fixed follow-up sequence. The position of each
// question decides where its answer is filed; see classify.
var DefaultQuestions = []string{
	"What makes your offering special compared to the alternatives?",
	"What are your main business goals right now?",
	"What challenges are you currently facing?",
	"Who is your target audience?",
	"What would success look like for you?",
}

// category is a knowledge list an answer can be filed under.
type category int

const (
	categoryBusiness category = iota
	categoryObjectives
	categoryConstraints
)

// classify maps a question position to its category and the prefix stored
// with the answer.
func classify(index int) (category, string) {
	switch index {
	case 0:
		return categoryBusiness, "Special features: "
	case 1:
		return categoryObjectives, ""
	case 2:
		return categoryConstraints, ""
	case 3:
		return categoryBusiness, "Target audience: "
	case 4:
		return categoryObjectives, "Success metric: "
	default:
		return categoryBusiness, "Additional details: "
	}
}

// categoryFor maps a missing-category label from the scorer to a category.
func categoryFor(label string) category {
	switch label {
	case profile.CategoryObjectives:
		return categoryObjectives
	case profile.CategoryConstraints:
		return categoryConstraints
	default:
		return categoryBusiness
	}
}
