package anthropic

// BuildCachedSystemBlocks returns a single system block with a cache
// breakpoint. The extraction prompts are identical across documents, so every
// call after the first within ttl reads the prompt from cache. An empty ttl
// uses the API default of five minutes.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
