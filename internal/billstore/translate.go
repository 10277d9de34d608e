package billstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/models"
)

// Collection is the document collection holding bills.
const Collection = "bills"

// PatchFields are the top-level fields the adapter's updates write. Everything else is
// fixed once the bill is created.
var PatchFields = []string{"items", "participants", "status"}

// Ref addresses the document of a bill.
func Ref(billID string) docstore.Ref {
	return docstore.Doc(Collection, billID)
}

// document is the remote shape of a bill. The bill ID is the document ID, not a field.
type document struct {
	HotelName     string      `json:"hotelName"`
	ServiceCharge float64     `json:"serviceCharge"`
	GST           float64     `json:"gst"`
	Status        string      `json:"status,omitempty"`
	CreatedAt     time.Time   `json:"createdAt,omitzero"`
	Items         []itemDoc   `json:"items"`
	Participants  []memberDoc `json:"participants"`
}

type itemDoc struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Qty        int      `json:"qty"`
	Price      float64  `json:"price"`
	AssignedTo []string `json:"assignedTo"`
}

// memberDoc stores the participant ID under "uid".
type memberDoc struct {
	UID      string `json:"uid"`
	Initials string `json:"initials"`
	Color    string `json:"color"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
}

func itemDocs(items []models.Item) []itemDoc {
	out := make([]itemDoc, len(items))
	for i, item := range items {
		assigned := item.AssignedTo
		if assigned == nil {
			assigned = []string{}
		}
		out[i] = itemDoc{ID: item.ID, Name: item.Name, Qty: item.Qty, Price: item.Price, AssignedTo: assigned}
	}
	return out
}

func memberDocs(participants []models.Participant) []memberDoc {
	out := make([]memberDoc, len(participants))
	for i, p := range participants {
		out[i] = memberDoc{UID: p.ID, Initials: p.Initials, Color: p.Color, Name: p.Name, PhotoURL: p.PhotoURL}
	}
	return out
}

// ToDocument converts a bill into document fields.
func ToDocument(bill models.Bill) (docstore.Fields, error) {
	status := bill.Status
	if status == "" {
		status = models.BillStatusActive
	}
	return toFields(document{
		HotelName:     bill.Name,
		ServiceCharge: bill.ServiceCharge,
		GST:           bill.GST,
		Status:        string(status),
		CreatedAt:     bill.CreatedAt.UTC(),
		Items:         itemDocs(bill.Items),
		Participants:  memberDocs(bill.Participants),
	})
}

// itemsPatch is the update writing the whole item list.
func itemsPatch(items []models.Item) (docstore.Fields, error) {
	return toFields(struct {
		Items []itemDoc `json:"items"`
	}{itemDocs(items)})
}

// participantsPatch is the update writing the participant list.
func participantsPatch(participants []models.Participant) (docstore.Fields, error) {
	return toFields(struct {
		Participants []memberDoc `json:"participants"`
	}{memberDocs(participants)})
}

// membershipPatch writes participants and items together.
func membershipPatch(bill models.Bill) (docstore.Fields, error) {
	return toFields(struct {
		Items        []itemDoc   `json:"items"`
		Participants []memberDoc `json:"participants"`
	}{itemDocs(bill.Items), memberDocs(bill.Participants)})
}

func toFields(v any) (docstore.Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode bill: %w", err)
	}
	var fields docstore.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode bill: %w", err)
	}
	return fields, nil
}

// FromSnapshot converts a bill document into the model. A missing document yields nil.
// Absent amounts read as zero, absent lists as empty and an absent status as active.
func FromSnapshot(snap docstore.Snapshot) (*models.Bill, error) {
	if !snap.Exists {
		return nil, nil
	}
	data, err := json.Marshal(snap.Fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBill, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBill, snap.Ref, err)
	}

	status := models.BillStatus(doc.Status)
	if status == "" {
		status = models.BillStatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s: unknown status %q", ErrMalformedBill, snap.Ref, doc.Status)
	}

	bill := &models.Bill{
		ID:            snap.Ref.ID,
		Name:          doc.HotelName,
		ServiceCharge: doc.ServiceCharge,
		GST:           doc.GST,
		Status:        status,
		CreatedAt:     doc.CreatedAt,
		Items:         make([]models.Item, len(doc.Items)),
		Participants:  make([]models.Participant, len(doc.Participants)),
	}
	for i, item := range doc.Items {
		assigned := item.AssignedTo
		if assigned == nil {
			assigned = []string{}
		}
		bill.Items[i] = models.Item{ID: item.ID, Name: item.Name, Qty: item.Qty, Price: item.Price, AssignedTo: assigned}
	}
	for i, m := range doc.Participants {
		bill.Participants[i] = models.Participant{ID: m.UID, Initials: m.Initials, Color: m.Color, Name: m.Name, PhotoURL: m.PhotoURL}
	}
	return bill, nil
}
