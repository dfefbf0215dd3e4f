package extraction

import "fmt"

// BuildPrompt returns the extraction instructions for the current schema version.
func BuildPrompt() string {
	return fmt.Sprintf(
		"You extract figures from US residential property management owner statements (schema %s).\n\n"+
			"Return ONE JSON object with exactly these keys:\n"+
			"- %q: string, the statement date as \"MM/DD/YYYY\"\n"+
			"- %q: string, the property management company that issued the statement\n"+
			"- %q: array of objects, one per property, each with:\n"+
			"    - %q: string, the street address as printed\n"+
			"    - %q: number, rent billed for the period\n"+
			"    - %q: number, rent actually collected\n"+
			"    - %q: number, management fees charged\n"+
			"    - %q: number, net amount remitted to the owner\n\n"+
			"Rules:\n"+
			"- Use null for any figure that is not on the statement; do not guess.\n"+
			"- Numbers are plain decimals without currency symbols or thousand separators.\n"+
			"- Do not add keys that are not listed above.\n"+
			"- Return ONLY raw JSON. Do NOT wrap the response in code fences.\n",
		SchemaVersion,
		FieldStatementDate, FieldManager, FieldProperties,
		FieldAddress, FieldRentAmount, FieldRentPaid, FieldManagementFees, FieldNetIncome,
	)
}
