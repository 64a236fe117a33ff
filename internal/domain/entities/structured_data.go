package entities

import (
	"encoding/json"
	"strings"
)

const maxStructuredIndications = 3

type jsonLDThing struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type jsonLDIdentifier struct {
	Type       string `json:"@type"`
	PropertyID string `json:"propertyID"`
	Value      string `json:"value"`
}

type jsonLDDrug struct {
	Context            string            `json:"@context"`
	Type               string            `json:"@type"`
	Name               string            `json:"name"`
	NonProprietaryName string            `json:"nonProprietaryName,omitempty"`
	Description        string            `json:"description,omitempty"`
	ActiveIngredient   string            `json:"activeIngredient,omitempty"`
	Manufacturer       *jsonLDThing      `json:"manufacturer,omitempty"`
	DrugClass          *jsonLDThing      `json:"drugClass,omitempty"`
	Indication         []jsonLDThing     `json:"indication,omitempty"`
	Identifier         *jsonLDIdentifier `json:"identifier,omitempty"`
	Keywords           string            `json:"keywords,omitempty"`
}

// BuildDrugStructuredData renders a schema.org Drug JSON-LD document. Label
// fields come from drug; the description and keywords come from content
// when it is given. Returns nil for a drug without any name.
func BuildDrugStructuredData(drug *DrugRecord, content *EnrichmentContent) json.RawMessage {
	if drug == nil || drug.DisplayName() == "" {
		return nil
	}

	doc := jsonLDDrug{
		Context:          "https://schema.org",
		Type:             "Drug",
		Name:             drug.DisplayName(),
		ActiveIngredient: strings.Join(nonBlank(drug.Ingredients), ", "),
	}
	if drug.GenericName != "" && !strings.EqualFold(drug.GenericName, doc.Name) {
		doc.NonProprietaryName = drug.GenericName
	}
	if drug.Manufacturer != "" {
		doc.Manufacturer = &jsonLDThing{Type: "Organization", Name: drug.Manufacturer}
	}
	if classes := nonBlank(drug.PharmClasses); len(classes) > 0 {
		doc.DrugClass = &jsonLDThing{Type: "DrugClass", Name: classes[0]}
	}
	if drug.ExternalID != "" {
		doc.Identifier = &jsonLDIdentifier{Type: "PropertyValue", PropertyID: "NDC", Value: drug.ExternalID}
	}
	for _, ind := range nonBlank(drug.Indications) {
		doc.Indication = append(doc.Indication, jsonLDThing{
			Type: "MedicalIndication",
			Name: truncateWords(ind, MaxMetaDescriptionChars),
		})
		if len(doc.Indication) == maxStructuredIndications {
			break
		}
	}

	switch {
	case content != nil && content.MetaDescription != "":
		doc.Description = content.MetaDescription
	case content != nil && content.Summary != "":
		doc.Description = truncateWords(content.Summary, MaxMetaDescriptionChars)
	case len(doc.Indication) > 0:
		doc.Description = doc.Indication[0].Name
	}
	if content != nil && len(content.Keywords) > 0 {
		doc.Keywords = strings.Join(content.Keywords, ", ")
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return encoded
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
