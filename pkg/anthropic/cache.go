package anthropic

// BuildCachedSystemBlocks splits a system prompt into a cached prefix and an
// uncached suffix. The prefix (the schema catalog) is identical across every
// stage of a run, so it carries a cache breakpoint; the suffix holds the
// stage-specific instructions. Empty parts are omitted.
func BuildCachedSystemBlocks(prefix, suffix string) []SystemBlock {
	var blocks []SystemBlock
	if prefix != "" {
		blocks = append(blocks, SystemBlock{
			Text:         prefix,
			CacheControl: &CacheControl{TTL: "5m"},
		})
	}
	if suffix != "" {
		blocks = append(blocks, SystemBlock{Text: suffix})
	}
	return blocks
}
