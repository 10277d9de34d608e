// Package models defines the core domain models for splitqr.
//
// # Models
//
//   - Bill: one restaurant check being split, the single root object
//   - Item: a line on the bill; Price is the line total, Qty is informational
//   - Participant: a guest or signed-in diner who may claim items
//   - Share: the derived per-participant breakdown (never persisted)
//   - Identity: the resolved identity-provider user (anonymous or password account)
//
// Items and Participants are embedded in their Bill and have no lifetime of their own.
// Relationships between them are expressed with ID strings (Item.AssignedTo holds
// Participant IDs), never pointers, so a Bill can be copied and compared by value.
package models
