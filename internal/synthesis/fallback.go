package synthesis

import "github.com/civicnav/civicnav/internal/domain"

// NoResultsResponse is the answer when retrieval found nothing.
const NoResultsResponse = `I don't have specific information about that in my knowledge base. Here are some suggestions:

1. Contact City Hall directly at 555-CITY (555-2489)
2. Visit the city website at www.example-city.gov
3. Try rephrasing your question with more specific terms

Is there anything else I can help you with?`

// ApologyResponse is the answer when the completion call fails.
const ApologyResponse = "I'm having trouble generating a response right now. Please try again or contact City Hall directly."

const noResultsReasoning = "No relevant results found in knowledge base. Provided fallback response with contact information."

var categorySuggestions = map[domain.Category]string{
	domain.CategorySchedule:  "For schedule information, you can check the city calendar at www.example-city.gov/calendar",
	domain.CategoryPermit:    "For permit inquiries, contact the Planning Department at 555-PLAN",
	domain.CategoryEmergency: "For emergencies, always dial 911. For non-emergencies, call 555-0100",
	domain.CategoryEvent:     "For upcoming events, visit the community events page at www.example-city.gov/events",
	domain.CategoryReport:    "To report an issue, call 311 or use the city's online reporting system",
	domain.CategoryGeneral:   "For general inquiries, contact City Hall at 555-CITY",
}

// FallbackAnswer is a category-aware answer for callers that must reply even
// when the pipeline aborted.
func FallbackAnswer(category domain.Category) string {
	suggestion, ok := categorySuggestions[category]
	if !ok {
		suggestion = "For assistance, contact City Hall at 555-CITY"
	}
	return "I couldn't find specific information about your question. " + suggestion
}
