package query

import "fmt"

// FailResponse is returned when nothing relevant was retrieved
const FailResponse = "Sorry, I'm not able to provide an answer to that question.[no-context]"

// Prompts used by the query engine
const (
	ResponsePrompt = `---Role---

You are a helpful assistant responding to questions about the data in the tables provided.

---Goal---

Generate a response of the target length and format that answers the user's question, summarizing all information in the input data tables appropriate for the response length and format, and incorporating any relevant general knowledge.
If you don't know the answer, just say so. Do not make anything up.
Do not include information where the supporting evidence for it is not provided.

---Target response length and format---

%s

---Data tables---

%s

Add sections and commentary to the response as appropriate for the length and format. Style the response in markdown.`

	KeywordsPrompt = `---Role---

You are a helpful assistant tasked with identifying both high-level and low-level keywords in the user's query.

---Goal---

Given the query, list both high-level and low-level keywords. High-level keywords focus on overarching concepts or themes, while low-level keywords focus on specific entities, details, or concrete terms.

Return only a JSON object with this structure:
{"high_level_keywords": ["..."], "low_level_keywords": ["..."]}

Query: %s
`
)

func responsePrompt(responseType, context string) string {
	return fmt.Sprintf(ResponsePrompt, responseType, context)
}
