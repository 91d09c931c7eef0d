// Package client is the Go SDK for the custody audit trail service.
//
// It wraps the auditd HTTP API: logging events, running forensic queries,
// verifying the hash chain, and managing auditors, settings, and compliance
// reports.
//
// # Logging an event
//
// Every call carries the caller's identity token; the recorded actor is
// always the token subject, never a request field:
//
//	c := client.New("https://audit.internal:8080",
//	    client.WithToken(os.Getenv("AUDIT_TOKEN")),
//	)
//	id, err := c.LogEvent(ctx, client.LogEventRequest{
//	    EventType:          "transaction_executed",
//	    ResourceType:       "transaction",
//	    ResourceID:         "tx_9f2c",
//	    Action:             "execute",
//	    Details:            "wire transfer settled",
//	    ComplianceRelevant: true,
//	})
//
// # Forensic queries
//
// Query criteria are conjunctive; list-valued criteria match any of their
// values. Results come back newest first:
//
//	entries, err := c.QueryEntries(ctx, client.QueryOptions{
//	    EventTypes:     []string{"transaction_executed"},
//	    Start:          windowStart.UnixNano(),
//	    End:            windowEnd.UnixNano(),
//	    ComplianceOnly: true,
//	    Limit:          100,
//	})
//
// Non-auditor callers receive empty results rather than errors; an
// unauthorized caller cannot distinguish "denied" from "nothing there".
//
// # Chain verification
//
//	res, err := c.VerifyChain(ctx)
//	if err == nil && !res.Valid {
//	    // res.EntryID and res.Reason name the first broken entry.
//	}
//
// A verification failure means recorded history no longer matches its hashes
// and should be treated as an incident, not retried.
package client
