package pipeline

import (
	"fmt"
	"strings"

	"jurisense/backend/internal/llmjson"
)

const termsPrompt = `You are JuriSense, an assistant that explains legal documents in plain English.

Read the document excerpt below and list the legal terms a non-lawyer would need explained.
Return ONLY a JSON object of the form:
{"terms":[{"term":"<legal term>","explanation":"<one or two plain-English sentences>"}]}
Rules:
- the top level must be an object with a single "terms" array, never a bare array
- no prose before or after the JSON, no code fences, no trailing commas
- list the most important terms first
- use {"terms":[]} when the excerpt has no legal terms

Document excerpt:
%s`

const clausesPrompt = `You are JuriSense, an assistant that explains legal documents in plain English.

Read the document excerpt below and identify its important clauses (for example termination, liability, payment, confidentiality, governing law).
Return ONLY a JSON object of the form:
{"clauses":[{"clause":"<clause name>","explanation":"<what it means for the reader in plain English>"}]}
Rules:
- the top level must be an object with a single "clauses" array, never a bare array
- no prose before or after the JSON, no code fences, no trailing commas
- list the most important clauses first
- use {"clauses":[]} when the excerpt has no clauses

Document excerpt:
%s`

const summaryPrompt = `You are JuriSense, an assistant that explains legal documents in plain English.

Write a summary of the document below in 5 to 7 sentences of plain language.
Cover its purpose, the parties involved, its scope, and the main obligations of each party.
Reply with the summary text only.

Document:
%s`

const passageSeparator = "\n\n---\n\n"

func extractionPrompt(kind llmjson.Kind, passages []string) string {
	tmpl := termsPrompt
	if kind == llmjson.KindClauses {
		tmpl = clausesPrompt
	}
	return fmt.Sprintf(tmpl, strings.Join(passages, passageSeparator))
}

func summarizationPrompt(passages []string) string {
	return fmt.Sprintf(summaryPrompt, strings.Join(passages, passageSeparator))
}
