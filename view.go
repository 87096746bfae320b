/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Per-viewer projections of room state. All redaction rules live here, in
// one place: no other player's hand is ever included, and table cards only
// give up their identity, author and votes as the phase permits. Projection
// is a pure read; it never mutates the room, and repeated calls against
// unchanged state produce identical output.

// hiddenCardID is the sentinel the web client renders as a face-down card.
const hiddenCardID = "hidden"

type PublicPlayer struct {
	ID         string `json:"id"`
	Color      Color  `json:"color"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	Score      int    `json:"score"`
	IsLeft     bool   `json:"isLeft"`
	IsPlaying  bool   `json:"isPlaying"`
	IsAwaiting bool   `json:"isAwaiting"`
}

// PublicCard is a table card as one specific viewer may see it. Author and
// votes stay null until the results phases; the id stays "hidden" outside
// voting and results. IsMyCard is always truthful so the client can stop
// the viewer from voting for their own card.
type PublicCard struct {
	ID       string      `json:"id"`
	Player   *PlayerRef  `json:"player"`
	IsMyCard bool        `json:"isMyCard"`
	VotedBy  []PlayerRef `json:"votedBy"`
}

type PublicRoom struct {
	Name           string         `json:"name"`
	HasLeftPlayers bool           `json:"hasLeftPlayers"`
	Status         Status         `json:"status"`
	Players        []PublicPlayer `json:"players"`
	Lead           *PlayerRef     `json:"lead"`
	LeadClue       string         `json:"leadClue"`
	Cards          []PublicCard   `json:"cards"`
}

// Me is the viewer's own record, the only place a hand appears.
type Me struct {
	ID         string `json:"id"`
	Color      Color  `json:"color"`
	Cards      []Card `json:"cards"`
	IsLeft     bool   `json:"isLeft"`
	IsPlaying  bool   `json:"isPlaying"`
	IsAwaiting bool   `json:"isAwaiting"`
}

type PlayerState struct {
	Room PublicRoom `json:"room"`
	Me   Me         `json:"me"`
}

// StatesForPlayers renders one viewer-safe snapshot per non-left member,
// keyed by player id. The transport layer broadcasts each entry to its
// respective connection after every applied command.
func (r *Room) StatesForPlayers() map[string]PlayerState {
	players := make([]PublicPlayer, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, PublicPlayer{
			ID:         p.ID,
			Color:      p.Color,
			Name:       playerName(p.ID, p.Color),
			Avatar:     playerAvatar(p.ID),
			Score:      p.Score,
			IsLeft:     p.IsLeft,
			IsPlaying:  p.IsPlaying,
			IsAwaiting: p.IsAwaiting,
		})
	}

	var lead *PlayerRef
	if r.lead != nil {
		ref := *r.lead
		lead = &ref
	}

	revealed := r.status == StatusRoundResults || r.status == StatusGameResults
	idVisible := revealed || r.status == StatusOtherPlayersVote

	states := make(map[string]PlayerState, len(r.players))
	for _, viewer := range r.notLeftPlayers() {
		cards := make([]PublicCard, 0, len(r.table))
		for _, tc := range r.table {
			card := PublicCard{
				ID:       hiddenCardID,
				IsMyCard: tc.PlayedBy.Color == viewer.Color,
			}
			if idVisible {
				card.ID = string(tc.Card)
			}
			if revealed {
				ref := tc.PlayedBy
				card.Player = &ref
				card.VotedBy = append([]PlayerRef(nil), tc.VotedBy...)
			}
			cards = append(cards, card)
		}

		states[viewer.ID] = PlayerState{
			Room: PublicRoom{
				Name:           r.name,
				HasLeftPlayers: r.hasLeftPlayers,
				Status:         r.status,
				Players:        players,
				Lead:           lead,
				LeadClue:       r.leadClue,
				Cards:          cards,
			},
			Me: Me{
				ID:         viewer.ID,
				Color:      viewer.Color,
				Cards:      append([]Card(nil), viewer.Cards...),
				IsLeft:     viewer.IsLeft,
				IsPlaying:  viewer.IsPlaying,
				IsAwaiting: viewer.IsAwaiting,
			},
		}
	}

	return states
}
