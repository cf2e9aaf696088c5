package signatures

import (
	"strings"
	"text/template"
	"time"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

var contractTemplate = template.Must(template.New("license").Parse(`LICENSE AGREEMENT (version {{.Version}})

Room: {{.Room.Title}} ({{.Room.ID}})
Generated: {{.GeneratedAt.Format "2006-01-02T15:04:05Z07:00"}}

Accepted offer: v{{.Offer.Version}} ({{.Offer.ID}})
Price: {{.Offer.Price}}

Terms:
{{if .Offer.Terms}}{{.Offer.Terms}}{{else}}(none stated){{end}}

Parties:
{{range .Parties}}- {{.Role}}: {{.UserID}}
{{end}}`))

type contractData struct {
	Version     int
	Room        models.Room
	Offer       models.Offer
	Parties     []models.RoomParticipant
	GeneratedAt time.Time
}

// renderContract produces the license body signed by the room's counterparties.
func renderContract(version int, room models.Room, offer models.Offer, participants []models.RoomParticipant, now time.Time) (string, error) {
	var b strings.Builder
	err := contractTemplate.Execute(&b, contractData{
		Version:     version,
		Room:        room,
		Offer:       offer,
		Parties:     counterparties(participants),
		GeneratedAt: now,
	})
	return b.String(), err
}

// counterparties returns the buyer and seller participants, sellers first.
func counterparties(participants []models.RoomParticipant) []models.RoomParticipant {
	var sellers, buyers []models.RoomParticipant
	for _, p := range participants {
		switch p.Role {
		case enums.ParticipantRoleSeller:
			sellers = append(sellers, p)
		case enums.ParticipantRoleBuyer:
			buyers = append(buyers, p)
		}
	}
	return append(sellers, buyers...)
}
