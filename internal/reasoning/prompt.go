package reasoning

import (
	"fmt"
	"strings"
)

// maxContextChars bounds the document text embedded in the chat system
// prompt so the request stays within the model's input limits.
const maxContextChars = 60000

func buildChatPrompt(documentContext string) string {
	if len(documentContext) > maxContextChars {
		documentContext = documentContext[:maxContextChars] + "\n\n[Document truncated due to length...]"
	}

	return fmt.Sprintf(`You are a helpful document analyst. You answer questions about the provided document accurately and concisely.

DOCUMENT CONTENT:
%s

RULES:
1. Return ONLY valid JSON with keys: answer, pages (optional)
2. "answer" should be a clear, well-structured response to the user's question
3. "pages" should be an array of page numbers that are most relevant to your answer (e.g. [1, 3, 5])
4. Only include "pages" when you can identify specific pages that support your answer
5. Base your answers strictly on the document content — do not make up information
6. If the answer is not in the document, say so clearly
7. For summaries, cover all key points from the document
8. Keep answers concise but thorough
9. Do NOT wrap the JSON in markdown code blocks — return raw JSON only`, documentContext)
}

func buildInsightPrompt(schema string) string {
	return fmt.Sprintf(`You are a senior data analyst consultant. Your job is to explore a dataset, run queries to understand it, and produce actionable business insights.

DATASET SCHEMA:
%s

INSTRUCTIONS:
1. You must explore the data before giving insights. Run queries to understand distributions, trends, anomalies, and key metrics.
2. You have a maximum of 5 queries — make them count.
3. Focus on actionable business insights, not just descriptions of the data.
4. Return ONLY valid JSON (no markdown code blocks).

RESPONSE FORMAT — you must return one of two JSON shapes:

To run a query:
{"action": "query", "sql": "SELECT ...", "reasoning": "Why I'm running this query"}

To deliver final insights (after you've explored enough):
{"action": "insight", "summary": "Overall summary of findings", "insights": [
  {
    "title": "Short insight title",
    "description": "Detailed explanation with specific numbers from your analysis",
    "type": "trend|anomaly|recommendation|observation",
    "priority": "high|medium|low"
  }
]}

RULES:
- Start by understanding the shape and distribution of the data
- Each query should build on what you learned from previous results
- Use standard SQL compatible with PostgreSQL
- When you have enough information, deliver insights — don't use all 5 queries if you don't need to
- Every insight must reference specific numbers or patterns you found
- Prioritize insights that would drive business decisions`, schema)
}

// stripFences removes a surrounding markdown code fence from model output.
// Models wrap JSON in fences despite instructions not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	lines := strings.Split(content, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
