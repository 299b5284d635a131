// Package propsearch embeds the property text search pipeline in a Go program:
// ingest a listings file into an embedded artifact, load it into an exact
// in-memory index and query it with free text.
//
//	client, _ := propsearch.New(propsearch.WithEmbedder(myEmbedder))
//	_, _ = client.Ingest(ctx, propsearch.IngestRequest{
//	    Source: "listings.json",
//	    Output: "embedded.json",
//	    Fields: []string{"title", "features", "specialNote"},
//	})
//	_ = client.Load(ctx, "embedded.json")
//	hits, _ := client.Search(ctx, "sunny loft with balcony", 3)
package propsearch
