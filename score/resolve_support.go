package score

// SplitRef splits a sequence/arrangement-slot reference item such as
// "B:oct(-1)" into its bare name and colon-separated modifier list. Exported
// for the resolver, which needs the same parsing rule the parser itself uses
// for pattern/sequence header modifiers.
func SplitRef(s string) (string, []string) {
	return splitNameAndModifiers(s)
}
