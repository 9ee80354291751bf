package glossary

import (
	"sort"
	"strings"
)

type Entry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

var terms = map[string]string{
	"prima facie":            "At first sight; on the face of it. Evidence that is sufficient to establish a fact unless disproved.",
	"res judicata":           "A matter already judged. A legal doctrine that prevents re-litigation of issues already decided.",
	"habeas corpus":          "You shall have the body. A writ requiring a person to be brought before a judge or court.",
	"suo motu":               "On its own motion. Action taken by a court on its own initiative without formal application.",
	"ratio decidendi":        "The reason for the decision. The legal principle upon which a court's decision is based.",
	"obiter dicta":           "Things said by the way. Statements made by a judge that are not essential to the decision.",
	"mens rea":               "Guilty mind. The mental element of a crime; criminal intent.",
	"actus reus":             "Guilty act. The physical element of a crime; the actual criminal deed.",
	"cognizable offence":     "An offence where police can arrest without warrant and start investigation without court permission.",
	"non-cognizable offence": "An offence where police cannot arrest without warrant and need court permission to investigate.",
	"bailable offence":       "An offence where the accused has a right to be released on bail.",
	"non-bailable offence":   "An offence where bail is at the discretion of the court.",
	"writ":                   "A formal written order issued by a court.",
	"mandamus":               "We command. A writ ordering a public official to perform a mandatory duty.",
	"certiorari":             "To be informed. A writ for judicial review of a lower court's decision.",
	"prohibition":            "A writ preventing a lower court from exceeding its jurisdiction.",
	"quo warranto":           "By what authority. A writ questioning a person's right to hold public office.",
	"anticipatory bail":      "A direction to release a person on bail issued in anticipation of arrest.",
	"locus standi":           "The right or capacity to bring an action or appear in a court.",
	"sub judice":             "Under judgment. A matter being considered by a court and not yet decided.",
	"stare decisis":          "To stand by decided matters. The doctrine that courts follow binding precedent.",
	"ultra vires":            "Beyond the powers. An act done in excess of legal authority.",
	"ex parte":               "On behalf of one party. A proceeding conducted without the other side being present.",
	"force majeure":          "Superior force. An unforeseeable event that excuses a party from performing a contract.",
	"estoppel":               "A rule preventing a person from denying what they earlier asserted when another relied on it.",
}

// spelling variants accepted by Lookup
var aliases = map[string]string{
	"suo moto":               "suo motu",
	"obiter dictum":          "obiter dicta",
	"cognizable offense":     "cognizable offence",
	"non-cognizable offense": "non-cognizable offence",
	"non cognizable offence": "non-cognizable offence",
	"bailable offense":       "bailable offence",
	"non-bailable offense":   "non-bailable offence",
	"non bailable offence":   "non-bailable offence",
	"ratio":                  "ratio decidendi",
}

func normalize(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// Lookup finds the definition of term, ignoring case, spacing and common
// spelling variants.
func Lookup(term string) (Entry, bool) {
	key := normalize(term)
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	def, ok := terms[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{Term: key, Definition: def}, true
}

// Terms lists every defined term in alphabetical order.
func Terms() []string {
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Find returns the entries for every defined term mentioned in text, in
// alphabetical order.
func Find(text string) []Entry {
	haystack := " " + normalize(text) + " "
	var out []Entry
	for _, t := range Terms() {
		if strings.Contains(haystack, " "+t+" ") || strings.Contains(haystack, " "+t+",") || strings.Contains(haystack, " "+t+".") {
			out = append(out, Entry{Term: t, Definition: terms[t]})
		}
	}
	return out
}
