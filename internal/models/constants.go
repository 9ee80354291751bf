package models

const (
	// statute headings inside corpus text, e.g. "Section 101. Punishment for theft."
	SectionHeadingRegex = `(?m)(?:^|\n|\.\s)\s*((?:Section|Article|Rule|Order)\s+\d+[A-Z]{0,2})\b\.?\s*([A-Z][^.\n]{0,120})?`
	// references in case narratives, e.g. "u/s 379 IPC", "Section 420 of the Indian Penal Code"
	SectionReferenceRegex = `(?i)\b(?:section|sec\.|u/s\.?)\s*(\d+[a-z]{0,2})(?:\s+(?:of\s+the\s+)?(ipc|crpc|cr\.p\.c\.|indian penal code|code of criminal procedure|evidence act|constitution))?`
	ArticleReferenceRegex = `(?i)\barticle\s+(\d+[a-z]{0,2})(?:\s+of\s+the\s+constitution)?`
	ActYearRegex          = `\b(?:Act|Code|ACT|CODE),?\s+(1[6-9]\d{2}|20\d{2})\b`
	FourDigitYearRegex    = `\b(1[6-9]\d{2}|20\d{2})\b`
	ThinkTag              = `(?s)<think>.*?</think>`
	// dates such as "12/03/2021", "5 March 2021" or "March 5, 2021"
	DateRegex = `(?i)\b(?:\d{1,2}[-/]\d{1,2}[-/]\d{4}|\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`
	// money amounts such as "Rs. 50,000", "INR 1,00,000.00" or "₹ 2500"
	AmountRegex = `(?:\bRs\.?|\bINR|₹)\s*\d+(?:,\d+)*(?:\.\d{2})?`
)

// Agent personas. The system message of every stage call is built from one
// of these.
type Persona struct {
	Role      string
	Goal      string
	Backstory string
}

var (
	EntityExtractorPersona = Persona{
		Role:      "Legal Entity Extractor",
		Goal:      "Identify the parties, the type of case and the legal issues raised by a case narrative.",
		Backstory: "You are a litigation paralegal who reads fact patterns and lists exactly what they contain, without speculation.",
	}
	StatuteResearcherPersona = Persona{
		Role:      "Statute Researcher",
		Goal:      "Find the statutory provisions that govern the identified legal issues.",
		Backstory: "You know the bare acts well and always cite the section you rely on.",
	}
	PrecedentResearcherPersona = Persona{
		Role:      "Precedent Researcher",
		Goal:      "Find reported judgments that are on point for the identified legal issues.",
		Backstory: "You search case-law databases and report only judgments you actually found.",
	}
	LegalReasonerPersona = Persona{
		Role:      "Legal Reasoner",
		Goal:      "Apply the retrieved statutes and precedents to the issues and explain the likely outcome.",
		Backstory: "You are a senior advocate who reasons from the provisions and precedents in front of you.",
	}
	ReportWriterPersona = Persona{
		Role:      "Legal Report Writer",
		Goal:      "Turn the research file into a clear markdown memorandum.",
		Backstory: "You draft research memos for partners who read the executive summary first.",
	}
)

var (
	ExtractionTaskTemplate = `Jurisdiction: %s
Hints: %s

Read the case text below and return ONLY a JSON object of the form
{"parties": ["..."], "case_type": "..." or null, "issues": ["..."]}
List 3 to 7 short legal issues. Do not add any prose.

<case>
%s
</case>
`

	StatuteTaskTemplate = `Find statutory provisions relevant to these issues (jurisdiction: %s):
%s

Return ONLY a JSON array of objects with keys "title", "citation", "year", "snippet", "url", "score".`

	PrecedentTaskTemplate = `Find judgments relevant to these issues (jurisdiction: %s):
%s

Return ONLY a JSON array of objects with keys "title", "citation", "year", "snippet", "url", "score".`

	ReasoningTaskTemplate = `Analyse the case using the research payload below. Write your analysis as prose,
then end with a fenced JSON block of the form
{"principles": ["..."], "likely_interpretations": ["..."]}

<payload>
%s
</payload>
`

	ReportTaskTemplate = `Write a markdown legal research report for case %s using the payload below.
Use exactly these sections in order: Title, Entities and Issues, Statutes, Precedents,
Reasoning, Recommendations, Executive Summary. Cite only sources present in the payload.

<payload>
%s
</payload>
`

	ToolProtocolTemplate = `You can use these tools:
%s
To call a tool, reply with ONLY a JSON object: {"tool": "<name>", "input": {...}}.
You will receive the tool result as an observation. When you are done, reply with your final answer
and no tool call.`

	ObservationTemplate = "Observation from %s:\n%s"
)
