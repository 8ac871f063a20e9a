package intent

import (
	"fmt"
	"strings"

	"github.com/civicnav/civicnav/internal/domain"
	"github.com/civicnav/civicnav/internal/engine"
)

const systemPromptTemplate = `You are the intent classifier for a city services assistant. Classify the resident's question. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Categories:
%s

Entity types:
- "date": a day, date or time period ("Monday", "next week", "July 4th")
- "location": a street, address, park, neighborhood or facility
- "service_type": a specific city service ("trash pickup", "building permit")
- "department": a city department or office ("Public Works", "City Clerk")

Rules:
- "category" must be exactly one of the category names above.
- "confidence" is a number between 0 and 1 expressing how sure you are of the category.
- Use "general" with low confidence when no category clearly fits.
- "entities" lists every entity found in the question; use an empty array when there are none.
- "start_pos" and "end_pos" are optional character offsets of the entity in the question.`

var categoryDescriptions = map[domain.Category]string{
	domain.CategorySchedule:  "recurring service schedules such as trash, recycling or street sweeping",
	domain.CategoryEvent:     "community events, festivals, meetings and public programs",
	domain.CategoryReport:    "reporting problems such as potholes, broken streetlights or graffiti",
	domain.CategoryPermit:    "permits, licenses and applications",
	domain.CategoryEmergency: "emergencies, safety alerts and urgent hazards",
	domain.CategoryGeneral:   "anything else about city services, hours or contacts",
}

// BuildPrompt constructs the chat messages for intent classification.
func BuildPrompt(query string) []engine.Message {
	var cats strings.Builder
	for i, c := range domain.Categories {
		if i > 0 {
			cats.WriteByte('\n')
		}
		fmt.Fprintf(&cats, "- %q: %s", c, categoryDescriptions[c])
	}

	return []engine.Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, cats.String())},
		{Role: "user", Content: query},
	}
}

// classificationSchema returns the JSON schema for structured classifier output.
func classificationSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"category": {
				Type:        "string",
				Description: "The service category of the question",
				Enum:        domain.CategoryNames(),
			},
			"confidence": {Type: "number", Description: "Confidence in the category, 0 to 1"},
			"entities": {
				Type:        "array",
				Description: "Entities mentioned in the question",
				Items: &engine.Schema{
					Type: "object",
					Properties: map[string]engine.SchemaProperty{
						"type":      {Type: "string", Enum: []string{"date", "location", "service_type", "department"}},
						"value":     {Type: "string"},
						"start_pos": {Type: "integer"},
						"end_pos":   {Type: "integer"},
					},
					Required: []string{"type", "value"},
				},
			},
		},
		Required: []string{"category", "confidence", "entities"},
	}
}
