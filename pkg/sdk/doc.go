// Package wayfind provides a Go client for the wayfind query answering
// service: streaming ask runs, routing introspection, fact management and
// evidence administration over its HTTP API.
//
// # Streaming — consume events as they arrive
//
//	client := wayfind.New("http://localhost:8080", wayfind.WithAPIKey("dev-key"))
//	events, _ := client.Ask(ctx, wayfind.AskRequest{Query: "What is the VAT threshold?"})
//	for ev := range events {
//	    switch ev.Type {
//	    case wayfind.EventToken:
//	        fmt.Print(ev.Token)
//	    case wayfind.EventDone:
//	        fmt.Println()
//	    }
//	}
//
// # One call — wait for the full answer
//
//	answer, err := client.AskText(ctx, "What is the VAT threshold?")
package wayfind
