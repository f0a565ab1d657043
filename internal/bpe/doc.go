// Package bpe implements byte-level byte-pair encoding.
//
// A Tokenizer is one of four kinds:
//   - byte: merges learned over the raw bytes of the whole text
//   - regex: text is split by a pre-tokenization pattern before merging
//   - gpt4: merges and byte shuffle come from a cl100k vocabulary file
//   - heuristic: no merges; Count uses the estimate package
//
// Training learns merges in priority order. Train rescans every pair after
// each merge; TrainFast deduplicates chunks and updates pair counts around
// merge sites. Both stop at the requested size or, for the UntilConvergence
// variants, when the best pair gets too rare or stops shrinking the text.
//
// Example usage:
//
//	tok, err := bpe.New(bpe.KindRegex)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := tok.TrainFast(corpus, 4096, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	slog.Info("trained", "result", res.Summary())
//
//	ids := tok.Encode("Hello, world!")
//	text := tok.Decode(ids)
//
// Trained tokenizers are saved as a .model file, read back by Load, and a
// .vocab listing for humans. GPT-4 tokenizers are read from a tiktoken rank
// file or from the JSON written by ExportJSON.
package bpe
