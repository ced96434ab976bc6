package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint on the final block. Extraction sends the full document text as a
// cached system block so consecutive table batches against the same document
// hit the warm prompt cache instead of re-tokenizing the paper each call.
func BuildCachedSystemBlocks(instructions, document string) []SystemBlock {
	blocks := []SystemBlock{{Text: instructions}}
	if document != "" {
		blocks = append(blocks, SystemBlock{
			Text:         document,
			CacheControl: &CacheControl{TTL: "5m"},
		})
	}
	return blocks
}
