package extract

import (
	"fmt"
	"strings"
)

// DefaultEntityTypes contains commonly used entity types
var DefaultEntityTypes = []string{
	"PERSON",
	"ORGANIZATION",
	"LOCATION",
	"EVENT",
	"CONCEPT",
	"TECHNOLOGY",
	"PRODUCT",
	"DATE",
}

// Constants for default prompts
const (
	DefaultExtractionPrompt = `-Goal-
Given a text document and a list of entity types, identify all entities of those types from the text and all relationships among the identified entities.

-Steps-
1. Identify all entities. For each entity give:
- name: name of the entity, capitalized
- type: one of the following types: [%s]
- description: comprehensive description of the entity's attributes and activities
2. Among the entities from step 1, identify all pairs of clearly related entities. For each pair give:
- source: name of the source entity, as identified in step 1
- target: name of the target entity, as identified in step 1
- description: why the source and target are related to each other
- keywords: high-level key words that summarize the nature of the relationship
- weight: a number from 1 to 10 indicating the strength of the relationship
3. Write the descriptions in %s.

Return only a JSON object with this structure:
{
  "entities": [
    {"name": "entity_name", "type": "entity_type", "description": "entity description"}
  ],
  "relationships": [
    {"source": "source_name", "target": "target_name", "description": "relationship description", "keywords": ["keyword"], "weight": 1}
  ]
}

-Text-
%s
`

	GleaningPrompt = `MANY entities and relationships were missed in the last extraction.
Add them below using the same JSON structure. Return only the new ones, and an empty object {"entities": [], "relationships": []} when there is nothing to add.`

	CorrectionPrompt = `%s

Your previous answer could not be parsed as JSON (%s):
%s

Answer again with only the JSON object, no explanations.`

	SummaryPrompt = `You are a helpful assistant responsible for generating a comprehensive summary of the data provided below.
Given one entity or relationship and a list of descriptions, concatenate all of these into a single, comprehensive description that keeps every piece of information.
If the descriptions are contradictory, resolve the contradictions and provide a single, coherent summary.
Write it in third person, include the entity names for full context, and write it in %s.

-Data-
Name: %s
Description List:
%s

Output:
`
)

// DefaultLanguage is the language descriptions are written in
const DefaultLanguage = "English"

func extractionPrompt(types []string, language, text string) string {
	return fmt.Sprintf(DefaultExtractionPrompt, strings.Join(types, ", "), language, text)
}

func correctionPrompt(prompt, answer string, err error) string {
	return fmt.Sprintf(CorrectionPrompt, prompt, err, answer)
}

func summaryPrompt(language, name string, descriptions []string) string {
	return fmt.Sprintf(SummaryPrompt, language, name, "- "+strings.Join(descriptions, "\n- "))
}
