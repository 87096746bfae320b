/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/valyala/fastrand"
)

const (
	minPlayers = 3
	maxPlayers = 8
)

// Status is the phase of a room's state machine.
type Status string

const (
	StatusWaitingForPlayers      Status = "WAITING_FOR_PLAYERS"
	StatusGameNotStarted         Status = "GAME_NOT_STARTED"
	StatusLeadChoosesCard        Status = "LEAD_CHOOSES_CARD"
	StatusOtherPlayersChooseCard Status = "OTHER_PLAYERS_CHOOSE_CARD"
	StatusOtherPlayersVote       Status = "OTHER_PLAYERS_VOTE"
	StatusRoundCanceled          Status = "ROUND_CANCELED"
	StatusRoundResults           Status = "ROUND_RESULTS"
	StatusGameResults            Status = "GAME_RESULTS"
)

// PlayerRef identifies a player publicly, without exposing anything else.
type PlayerRef struct {
	ID    string `json:"id"`
	Color Color  `json:"color"`
}

// TableCard is a card played face-down this round, along with its author
// and the votes it has collected. TableCards are owned exclusively by the
// Room and exist only between the lead's play and the table being cleared.
type TableCard struct {
	Card     Card
	PlayedBy PlayerRef
	VotedBy  []PlayerRef
}

// Room is the authoritative state machine for one game: membership, phase
// progression, card custody, votes and scores. Every command returns whether
// it was applied; invalid commands leave the room untouched. A Room is not
// safe for concurrent use; the owning hub serializes all access to it.
type Room struct {
	name           string
	colors         []Color
	status         Status
	players        []*Player
	hasLeftPlayers bool
	lead           *PlayerRef
	leadClue       string
	deck           []Card
	table          []*TableCard

	deckSize int
	handSize int
	rng      *fastrand.RNG
}

func newRoom(name string, deckSize, handSize int, rng *fastrand.RNG) *Room {
	if rng == nil {
		rng = &fastrand.RNG{}
	}

	r := &Room{
		name:     name,
		status:   StatusWaitingForPlayers,
		colors:   append([]Color(nil), allColors...),
		deckSize: deckSize,
		handSize: handSize,
		rng:      rng,
	}

	// Shuffling the palette once per room varies color assignment order.
	shuffle(r.colors, rng)

	return r
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) Status() Status {
	return r.status
}

// IsEmpty reports whether no connected player remains; the registry evicts
// the room once this holds.
func (r *Room) IsEmpty() bool {
	return len(r.notLeftPlayers()) == 0
}

func (r *Room) IsFull() bool {
	return len(r.players) == maxPlayers
}

func (r *Room) playingPlayers() []*Player {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.IsPlaying {
			players = append(players, p)
		}
	}

	return players
}

func (r *Room) notLeftPlayers() []*Player {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if !p.IsLeft {
			players = append(players, p)
		}
	}

	return players
}

func (r *Room) inProgress() bool {
	return r.status != StatusWaitingForPlayers &&
		r.status != StatusGameNotStarted &&
		r.status != StatusGameResults
}

func (r *Room) refreshHasLeftPlayers() {
	r.hasLeftPlayers = len(r.players) != len(r.notLeftPlayers())
}

func (r *Room) findPlayer(color Color) *Player {
	for _, p := range r.players {
		if p.Color == color {
			return p
		}
	}

	return nil
}

func (r *Room) findPlayerByID(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}

	return nil
}

func (r *Room) findTableCard(id Card) *TableCard {
	for _, tc := range r.table {
		if tc.Card == id {
			return tc
		}
	}

	return nil
}

func (r *Room) anyoneAwaiting() bool {
	for _, p := range r.players {
		if p.IsAwaiting {
			return true
		}
	}

	return false
}

func (r *Room) nextColor() Color {
	for _, c := range r.colors {
		taken := false
		for _, p := range r.players {
			if p.Color == c {
				taken = true
				break
			}
		}
		if !taken {
			return c
		}
	}

	// Unreachable while maxPlayers does not exceed the palette size.
	return r.colors[0]
}

// Join assigns a color to a new player, or restores a returning one with
// their prior color, hand and score intact. It reports the assigned color
// and whether the join was applied; a full room rejects unknown ids.
// Joining mid-game leaves the newcomer out of play until the next start.
func (r *Room) Join(id string) (Color, bool) {
	if p := r.findPlayerByID(id); p != nil {
		p.IsLeft = false
		r.refreshHasLeftPlayers()
		return p.Color, true
	}

	if r.IsFull() {
		return "", false
	}

	color := r.nextColor()
	r.players = append(r.players, &Player{
		ID:        id,
		Color:     color,
		IsPlaying: !r.inProgress(),
	})

	if r.status == StatusWaitingForPlayers && len(r.players) >= minPlayers {
		r.status = StatusGameNotStarted
	}

	return color, true
}

// Leave marks a player as disconnected, which freezes round progression
// until they return or are kicked. With forever set, the player is removed
// permanently and any in-flight round is unwound.
func (r *Room) Leave(color Color, forever bool) {
	if forever {
		r.forceRemove(color)
	} else if p := r.findPlayer(color); p != nil {
		p.IsLeft = true
		r.hasLeftPlayers = true
	}

	if r.status == StatusGameNotStarted && len(r.players) < minPlayers {
		r.status = StatusWaitingForPlayers
	}
}

// Kick permanently removes a player, but only one already marked as left.
func (r *Room) Kick(color Color) bool {
	p := r.findPlayer(color)
	if p == nil || !p.IsLeft {
		return false
	}

	r.Leave(color, true)

	return true
}

// forceRemove drops a player's record entirely. If they were an active
// participant in a running round, the round cannot continue fairly: owed
// cards are handed back (or redrawn), the table is cleared, and the round
// lands in ROUND_CANCELED pending an explicit resume.
func (r *Room) forceRemove(color Color) {
	playing := r.playingPlayers()

	removedIdx := -1
	wasPlaying := false
	for i, p := range playing {
		if p.Color == color {
			removedIdx = i
			wasPlaying = true
			break
		}
	}

	dst := r.players[:0]
	for _, p := range r.players {
		if p.Color != color {
			dst = append(dst, p)
		}
	}
	r.players = dst
	r.refreshHasLeftPlayers()

	if !wasPlaying || !r.inProgress() {
		return
	}

	playing = r.playingPlayers()

	if len(playing) < minPlayers {
		r.status = StatusGameResults
		return
	}

	switch r.status {
	case StatusLeadChoosesCard, StatusOtherPlayersChooseCard, StatusOtherPlayersVote:
	default:
		return
	}

	// Mid-vote, every remaining player needs a replacement card drawn; if
	// the pool cannot cover that, the game is over.
	if r.status == StatusOtherPlayersVote && len(r.deck) < len(playing) {
		r.status = StatusGameResults
		return
	}

	if r.lead != nil && r.lead.Color == color {
		idx := removedIdx
		if idx < 0 || idx >= len(playing) {
			idx = 0
		}
		successor := playing[idx]
		r.lead = &PlayerRef{ID: successor.ID, Color: successor.Color}
	}

	for _, p := range playing {
		if r.status == StatusOtherPlayersVote {
			if len(r.deck) > 0 {
				p.Cards = append(p.Cards, r.deck[0])
				r.deck = r.deck[1:]
			}
		} else {
			for _, tc := range r.table {
				if tc.PlayedBy.Color == p.Color {
					p.Cards = append(p.Cards, tc.Card)
					break
				}
			}
		}
		p.IsAwaiting = r.lead != nil && r.lead.Color == p.Color
	}

	r.table = nil
	r.leadClue = ""
	r.status = StatusRoundCanceled
}

// Start deals a fresh game: new shuffled deck, scores zeroed, a full hand
// for every member, and the first player as lead.
func (r *Room) Start() bool {
	if r.hasLeftPlayers || r.inProgress() {
		return false
	}

	if len(r.players) < minPlayers || len(r.players) > maxPlayers {
		return false
	}

	r.deck = newShuffledDeck(r.deckSize, r.rng)
	r.table = nil
	r.lead = &PlayerRef{ID: r.players[0].ID, Color: r.players[0].Color}
	r.leadClue = ""
	r.status = StatusLeadChoosesCard

	for _, p := range r.players {
		p.Score = 0
		p.Cards = append([]Card(nil), r.deck[:r.handSize]...)
		r.deck = r.deck[r.handSize:]
		p.IsPlaying = true
		p.IsAwaiting = p.Color == r.lead.Color
	}

	return true
}

// Stop forces the game straight to results, abandoning the current round.
func (r *Room) Stop() bool {
	if r.hasLeftPlayers || !r.inProgress() {
		return false
	}

	r.status = StatusGameResults

	return true
}

// LeadChooseCard moves the lead's chosen card face-down to the table along
// with a non-empty clue, then blocks on everyone else playing a card.
func (r *Room) LeadChooseCard(color Color, cardID Card, clue string) bool {
	if r.hasLeftPlayers || r.status != StatusLeadChoosesCard {
		return false
	}

	if r.lead == nil || color != r.lead.Color || clue == "" {
		return false
	}

	p := r.findPlayer(color)
	if p == nil || !p.IsPlaying || !p.hasCard(cardID) {
		return false
	}

	p.removeCard(cardID)
	r.leadClue = clue
	r.table = []*TableCard{{
		Card:     cardID,
		PlayedBy: PlayerRef{ID: p.ID, Color: p.Color},
	}}

	for _, q := range r.players {
		if !q.IsPlaying {
			continue
		}
		q.IsAwaiting = q.Color != color
	}

	r.status = StatusOtherPlayersChooseCard

	return true
}

// OtherPlayerChooseCard moves a non-lead player's card to the table. Once
// the last one arrives, the table is shuffled to hide play order and the
// room moves on to voting.
func (r *Room) OtherPlayerChooseCard(color Color, cardID Card) bool {
	if r.hasLeftPlayers || r.status != StatusOtherPlayersChooseCard {
		return false
	}

	if r.lead != nil && color == r.lead.Color {
		return false
	}

	p := r.findPlayer(color)
	if p == nil || !p.IsPlaying || !p.IsAwaiting || !p.hasCard(cardID) {
		return false
	}

	p.removeCard(cardID)
	r.table = append(r.table, &TableCard{
		Card:     cardID,
		PlayedBy: PlayerRef{ID: p.ID, Color: p.Color},
	})
	p.IsAwaiting = false

	if !r.anyoneAwaiting() {
		shuffle(r.table, r.rng)
		r.status = StatusOtherPlayersVote

		for _, q := range r.players {
			if !q.IsPlaying {
				continue
			}
			if r.lead != nil && q.Color == r.lead.Color {
				continue
			}
			q.IsAwaiting = true
		}
	}

	return true
}

// OtherPlayerVote records a vote for a table card other than the voter's
// own. The last vote triggers scoring and the round (or game) results.
func (r *Room) OtherPlayerVote(color Color, cardID Card) bool {
	if r.hasLeftPlayers || r.status != StatusOtherPlayersVote {
		return false
	}

	if r.lead != nil && color == r.lead.Color {
		return false
	}

	p := r.findPlayer(color)
	tc := r.findTableCard(cardID)
	if p == nil || !p.IsPlaying || !p.IsAwaiting || tc == nil {
		return false
	}

	if tc.PlayedBy.Color == color {
		return false
	}

	tc.VotedBy = append(tc.VotedBy, PlayerRef{ID: p.ID, Color: p.Color})
	p.IsAwaiting = false

	if !r.anyoneAwaiting() {
		r.finishVoting()
	}

	return true
}

// finishVoting tabulates scores once the last vote lands. If the pool can
// no longer deal one card per playing member for the next round, the game
// ends here instead of showing round results.
//
// Scoring: with V votes on the lead's card out of P possible, V == 0 or
// V == P means the clue was too opaque or too obvious, so the lead earns
// nothing. Otherwise the lead and everyone who found their card earn 3.
// Every non-lead additionally earns one point per vote their own card drew.
func (r *Room) finishVoting() {
	playing := r.playingPlayers()

	if len(r.deck) < len(playing) {
		r.status = StatusGameResults
	} else {
		r.status = StatusRoundResults
	}

	var leadCard *TableCard
	if r.lead != nil {
		for _, tc := range r.table {
			if tc.PlayedBy.Color == r.lead.Color {
				leadCard = tc
				break
			}
		}
	}

	leadVotes := 0
	if leadCard != nil {
		leadVotes = len(leadCard.VotedBy)
	}
	allOrNone := leadVotes == 0 || leadVotes == len(playing)-1

	for _, p := range playing {
		if r.lead != nil && p.Color == r.lead.Color {
			if !allOrNone {
				p.Score += 3
			}
			continue
		}

		if !allOrNone && leadCard != nil && votedFor(leadCard, p.Color) {
			p.Score += 3
		}

		for _, tc := range r.table {
			if tc.PlayedBy.Color == p.Color {
				p.Score += len(tc.VotedBy)
				break
			}
		}

		p.IsAwaiting = false
	}
}

func votedFor(tc *TableCard, color Color) bool {
	for _, ref := range tc.VotedBy {
		if ref.Color == color {
			return true
		}
	}

	return false
}

// StartNextRound clears the table, rotates the lead to the next playing
// member in join order, and tops up every hand by one card. A canceled
// round instead resumes where it left off, with the existing lead. Any
// currently-playing member may trigger it.
func (r *Room) StartNextRound(color Color) bool {
	if r.hasLeftPlayers {
		return false
	}

	if r.status != StatusRoundResults && r.status != StatusRoundCanceled {
		return false
	}

	p := r.findPlayer(color)
	if p == nil || !p.IsPlaying {
		return false
	}

	if r.status == StatusRoundCanceled {
		r.status = StatusLeadChoosesCard
		return true
	}

	playing := r.playingPlayers()
	if len(r.deck) < len(playing) {
		r.status = StatusGameResults
		return true
	}

	r.table = nil

	prevIdx := -1
	for i, q := range playing {
		if r.lead != nil && q.Color == r.lead.Color {
			prevIdx = i
			break
		}
	}
	next := playing[(prevIdx+1)%len(playing)]
	r.lead = &PlayerRef{ID: next.ID, Color: next.Color}
	r.leadClue = ""
	r.status = StatusLeadChoosesCard

	for _, q := range playing {
		q.Cards = append(q.Cards, r.deck[0])
		r.deck = r.deck[1:]
		q.IsAwaiting = q.Color == r.lead.Color
	}

	return true
}
