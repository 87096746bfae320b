package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

const testDeckSize = 372

func seededRNG(seed uint32) *fastrand.RNG {
	rng := &fastrand.RNG{}
	rng.Seed(seed)
	return rng
}

func newTestRoom(t *testing.T, deckSize int, ids ...string) *Room {
	t.Helper()

	r := newRoom("ABCDEF", deckSize, 7, seededRNG(42))
	for _, id := range ids {
		_, ok := r.Join(id)
		require.True(t, ok, "join %s", id)
	}

	return r
}

func playerIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("player-%d", i+1)
	}
	return ids
}

// cardCensus counts every card in deck, hands and table.
func cardCensus(r *Room) int {
	total := len(r.deck) + len(r.table)
	for _, p := range r.players {
		total += len(p.Cards)
	}
	return total
}

func nonLead(r *Room) []*Player {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.playingPlayers() {
		if p.Color != r.lead.Color {
			players = append(players, p)
		}
	}
	return players
}

// advanceToVote plays a full choose phase: the lead plays a card with a
// clue, then every other player plays one.
func advanceToVote(t *testing.T, r *Room, clue string) {
	t.Helper()

	lead := r.findPlayer(r.lead.Color)
	require.True(t, r.LeadChooseCard(lead.Color, lead.Cards[0], clue))
	require.Equal(t, StatusOtherPlayersChooseCard, r.status)

	for _, p := range nonLead(r) {
		require.True(t, r.OtherPlayerChooseCard(p.Color, p.Cards[0]))
	}
	require.Equal(t, StatusOtherPlayersVote, r.status)
}

func tableCardOf(r *Room, color Color) *TableCard {
	for _, tc := range r.table {
		if tc.PlayedBy.Color == color {
			return tc
		}
	}
	return nil
}

func TestMinimumStartScenario(t *testing.T) {
	r := newRoom("ABCDEF", testDeckSize, 7, seededRNG(1))

	_, ok := r.Join("player-1")
	require.True(t, ok)
	_, ok = r.Join("player-2")
	require.True(t, ok)
	assert.Equal(t, StatusWaitingForPlayers, r.Status())
	assert.False(t, r.Start())

	_, ok = r.Join("player-3")
	require.True(t, ok)
	assert.Equal(t, StatusGameNotStarted, r.Status())

	require.True(t, r.Start())
	assert.Equal(t, StatusLeadChoosesCard, r.Status())
	assert.Equal(t, "player-1", r.lead.ID)

	for _, p := range r.players {
		assert.Len(t, p.Cards, 7)
		assert.True(t, p.IsPlaying)
		assert.Equal(t, 0, p.Score)
		assert.Equal(t, p.Color == r.lead.Color, p.IsAwaiting)
	}

	assert.Equal(t, testDeckSize, cardCensus(r))
}

func TestJoinCapacityAndColorUniqueness(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(maxPlayers)...)

	_, ok := r.Join("latecomer")
	assert.False(t, ok, "full room must reject unknown ids")

	seen := map[Color]bool{}
	for _, p := range r.players {
		assert.False(t, seen[p.Color], "color %s assigned twice", p.Color)
		seen[p.Color] = true
	}

	// A returning id keeps its seat even when the room is full.
	prior := r.players[3]
	r.Leave(prior.Color, false)
	color, ok := r.Join(prior.ID)
	require.True(t, ok)
	assert.Equal(t, prior.Color, color)
	assert.False(t, r.hasLeftPlayers)
}

func TestRejoinKeepsHandAndScore(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())

	p := r.players[1]
	p.Score = 5
	hand := append([]Card(nil), p.Cards...)

	r.Leave(p.Color, false)
	assert.True(t, r.hasLeftPlayers)

	color, ok := r.Join(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.Color, color)
	assert.Equal(t, 5, p.Score)
	assert.Equal(t, hand, p.Cards)
	assert.False(t, r.hasLeftPlayers)
}

func TestJoinMidGameSitsOut(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())

	_, ok := r.Join("latecomer")
	require.True(t, ok)

	p := r.findPlayerByID("latecomer")
	assert.False(t, p.IsPlaying)
	assert.Empty(t, p.Cards)

	// Not playing means no say in the round.
	lead := r.findPlayer(r.lead.Color)
	require.True(t, r.LeadChooseCard(lead.Color, lead.Cards[0], "ocean"))
	assert.False(t, r.OtherPlayerChooseCard(p.Color, "1"))
}

func TestMembershipRegression(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	assert.Equal(t, StatusGameNotStarted, r.Status())

	r.Leave(r.players[2].Color, true)
	assert.Equal(t, StatusWaitingForPlayers, r.Status())
}

func TestStartPreconditions(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)

	r.Leave(r.players[0].Color, false)
	assert.False(t, r.Start(), "left players block start")

	_, ok := r.Join(r.players[0].ID)
	require.True(t, ok)
	require.True(t, r.Start())
	assert.False(t, r.Start(), "start must be refused mid-game")
}

func TestRestartAfterGameResults(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())
	require.True(t, r.Stop())
	assert.Equal(t, StatusGameResults, r.Status())

	require.True(t, r.Start())
	assert.Equal(t, StatusLeadChoosesCard, r.Status())
	for _, p := range r.players {
		assert.Equal(t, 0, p.Score)
		assert.Len(t, p.Cards, 7)
	}
	assert.Equal(t, testDeckSize, cardCensus(r))
}

func TestStopOnlyInProgress(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	assert.False(t, r.Stop())

	require.True(t, r.Start())
	require.True(t, r.Stop())
	assert.False(t, r.Stop())
}

func TestLeadChooseCardValidation(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())

	lead := r.findPlayer(r.lead.Color)
	other := nonLead(r)[0]

	assert.False(t, r.LeadChooseCard(other.Color, other.Cards[0], "ocean"), "only the lead may open the round")
	assert.False(t, r.LeadChooseCard(lead.Color, lead.Cards[0], ""), "empty clue")
	assert.False(t, r.LeadChooseCard(lead.Color, other.Cards[0], "ocean"), "card not in lead's hand")
	assert.Equal(t, StatusLeadChoosesCard, r.Status())

	played := lead.Cards[0]
	require.True(t, r.LeadChooseCard(lead.Color, played, "ocean"))
	assert.Equal(t, StatusOtherPlayersChooseCard, r.Status())
	assert.Equal(t, "ocean", r.leadClue)
	assert.Len(t, lead.Cards, 6)
	assert.False(t, lead.IsAwaiting)

	require.Len(t, r.table, 1)
	assert.Equal(t, played, r.table[0].Card)
	assert.Equal(t, lead.Color, r.table[0].PlayedBy.Color)

	for _, p := range nonLead(r) {
		assert.True(t, p.IsAwaiting)
	}

	assert.Equal(t, testDeckSize, cardCensus(r))
}

func TestChooseCardPhase(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(4)...)
	require.True(t, r.Start())

	lead := r.findPlayer(r.lead.Color)
	require.True(t, r.LeadChooseCard(lead.Color, lead.Cards[0], "ocean"))

	others := nonLead(r)
	assert.False(t, r.OtherPlayerChooseCard(lead.Color, lead.Cards[0]), "lead cannot play twice")

	require.True(t, r.OtherPlayerChooseCard(others[0].Color, others[0].Cards[0]))
	assert.False(t, others[0].IsAwaiting)
	assert.False(t, r.OtherPlayerChooseCard(others[0].Color, others[0].Cards[0]), "one card per player")
	assert.Equal(t, StatusOtherPlayersChooseCard, r.Status(), "still waiting on the rest")

	require.True(t, r.OtherPlayerChooseCard(others[1].Color, others[1].Cards[0]))
	require.True(t, r.OtherPlayerChooseCard(others[2].Color, others[2].Cards[0]))

	assert.Equal(t, StatusOtherPlayersVote, r.Status())
	assert.Len(t, r.table, 4)
	for _, p := range others {
		assert.True(t, p.IsAwaiting, "everyone but the lead votes")
	}
	assert.False(t, lead.IsAwaiting)
	assert.Equal(t, testDeckSize, cardCensus(r))
}

func TestSelfVoteProhibited(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "ocean")

	voter := nonLead(r)[0]
	own := tableCardOf(r, voter.Color)
	require.NotNil(t, own)

	assert.False(t, r.OtherPlayerVote(voter.Color, own.Card))
	assert.True(t, voter.IsAwaiting)
}

func TestLeadCannotVote(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "ocean")

	target := tableCardOf(r, nonLead(r)[0].Color)
	assert.False(t, r.OtherPlayerVote(r.lead.Color, target.Card))
}

func TestFullRoundUnanimousMiss(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "ocean")

	others := nonLead(r)
	// Both voters pick each other's decoys; nobody finds the lead's card.
	require.True(t, r.OtherPlayerVote(others[0].Color, tableCardOf(r, others[1].Color).Card))
	require.True(t, r.OtherPlayerVote(others[1].Color, tableCardOf(r, others[0].Color).Card))

	assert.Equal(t, StatusRoundResults, r.Status())
	assert.Equal(t, 0, r.findPlayer(r.lead.Color).Score)
	assert.Equal(t, 1, others[0].Score)
	assert.Equal(t, 1, others[1].Score)
}

func TestScoringSplitVote(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(4)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "ocean")

	lead := r.findPlayer(r.lead.Color)
	others := nonLead(r)
	leadCard := tableCardOf(r, lead.Color)

	// Two voters find the lead's card, one falls for a decoy.
	require.True(t, r.OtherPlayerVote(others[0].Color, leadCard.Card))
	require.True(t, r.OtherPlayerVote(others[1].Color, leadCard.Card))
	require.True(t, r.OtherPlayerVote(others[2].Color, tableCardOf(r, others[0].Color).Card))

	assert.Equal(t, StatusRoundResults, r.Status())
	assert.Equal(t, 3, lead.Score)
	assert.Equal(t, 4, others[0].Score, "3 for finding the lead plus 1 vote drawn")
	assert.Equal(t, 3, others[1].Score)
	assert.Equal(t, 0, others[2].Score)
}

func TestScoringUnanimousHit(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "too obvious")

	leadCard := tableCardOf(r, r.lead.Color)
	for _, p := range nonLead(r) {
		require.True(t, r.OtherPlayerVote(p.Color, leadCard.Card))
	}

	assert.Equal(t, StatusRoundResults, r.Status())
	for _, p := range r.playingPlayers() {
		assert.Equal(t, 0, p.Score, "an unmissable clue pays nobody")
	}
}

func TestStartNextRoundRotation(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())

	firstLead := r.lead.Color
	advanceToVote(t, r, "ocean")
	others := nonLead(r)
	require.True(t, r.OtherPlayerVote(others[0].Color, tableCardOf(r, others[1].Color).Card))
	require.True(t, r.OtherPlayerVote(others[1].Color, tableCardOf(r, others[0].Color).Card))
	require.Equal(t, StatusRoundResults, r.Status())

	assert.False(t, r.StartNextRound("not-a-color"))
	require.True(t, r.StartNextRound(r.players[2].Color))

	assert.Equal(t, StatusLeadChoosesCard, r.Status())
	assert.Equal(t, r.players[1].Color, r.lead.Color, "lead advances in join order")
	assert.NotEqual(t, firstLead, r.lead.Color)
	assert.Empty(t, r.table)
	assert.Empty(t, r.leadClue)

	for _, p := range r.playingPlayers() {
		assert.Len(t, p.Cards, 7, "hands topped back up")
		assert.Equal(t, p.Color == r.lead.Color, p.IsAwaiting)
	}
	assert.Equal(t, testDeckSize, cardCensus(r))
}

func TestLeadRotationWraps(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())

	playRound := func() {
		advanceToVote(t, r, "clue")
		others := nonLead(r)
		require.True(t, r.OtherPlayerVote(others[0].Color, tableCardOf(r, others[1].Color).Card))
		require.True(t, r.OtherPlayerVote(others[1].Color, tableCardOf(r, others[0].Color).Card))
		require.True(t, r.StartNextRound(r.players[0].Color))
	}

	playRound()
	assert.Equal(t, r.players[1].Color, r.lead.Color)
	playRound()
	assert.Equal(t, r.players[2].Color, r.lead.Color)
	playRound()
	assert.Equal(t, r.players[0].Color, r.lead.Color, "rotation wraps to the first player")
}

func TestPoolExhaustionEndsGame(t *testing.T) {
	// 24 cards: dealing 3x7 leaves 3, enough for exactly one top-up.
	r := newTestRoom(t, 24, playerIDs(3)...)
	require.True(t, r.Start())
	require.Len(t, r.deck, 3)

	finishRound := func() {
		advanceToVote(t, r, "clue")
		others := nonLead(r)
		require.True(t, r.OtherPlayerVote(others[0].Color, tableCardOf(r, others[1].Color).Card))
		require.True(t, r.OtherPlayerVote(others[1].Color, tableCardOf(r, others[0].Color).Card))
	}

	finishRound()
	require.Equal(t, StatusRoundResults, r.Status())
	require.True(t, r.StartNextRound(r.players[0].Color))
	require.Empty(t, r.deck)

	finishRound()
	assert.Equal(t, StatusGameResults, r.Status(), "an empty pool ends the game at vote completion")
}

func TestStartNextRoundExhaustionEndsGame(t *testing.T) {
	r := newTestRoom(t, 24, playerIDs(3)...)
	require.True(t, r.Start())

	advanceToVote(t, r, "clue")
	others := nonLead(r)
	require.True(t, r.OtherPlayerVote(others[0].Color, tableCardOf(r, others[1].Color).Card))
	require.True(t, r.OtherPlayerVote(others[1].Color, tableCardOf(r, others[0].Color).Card))
	require.Equal(t, StatusRoundResults, r.Status())

	r.deck = r.deck[:2] // fewer than one card per player
	require.True(t, r.StartNextRound(r.players[0].Color))
	assert.Equal(t, StatusGameResults, r.Status())
}

func TestSoftLeaveFreezesRound(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())

	gone := nonLead(r)[0]
	r.Leave(gone.Color, false)
	require.True(t, r.hasLeftPlayers)

	lead := r.findPlayer(r.lead.Color)
	assert.False(t, r.LeadChooseCard(lead.Color, lead.Cards[0], "ocean"), "rounds freeze while a player is gone")

	_, ok := r.Join(gone.ID)
	require.True(t, ok)
	assert.True(t, r.LeadChooseCard(lead.Color, lead.Cards[0], "ocean"))
}

func TestKickRequiresLeftPlayer(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(4)...)

	target := r.players[3]
	assert.False(t, r.Kick(target.Color), "connected players cannot be kicked")

	r.Leave(target.Color, false)
	assert.True(t, r.Kick(target.Color))
	assert.Nil(t, r.findPlayerByID(target.ID))
	assert.False(t, r.hasLeftPlayers)
}

func TestColorRecycledAfterRemoval(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(maxPlayers)...)

	removed := r.players[5]
	r.Leave(removed.Color, true)
	require.Len(t, r.players, maxPlayers-1)

	_, ok := r.Join("replacement")
	require.True(t, ok)

	seen := map[Color]bool{}
	for _, p := range r.players {
		assert.False(t, seen[p.Color], "color %s assigned twice", p.Color)
		seen[p.Color] = true
	}
}

func TestForcedRemovalMidVote(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(4)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "ocean")

	oldLead := r.lead.Color
	deckBefore := len(r.deck)

	r.Leave(oldLead, true)

	assert.Equal(t, StatusRoundCanceled, r.Status())
	assert.Len(t, r.players, 3)
	assert.NotEqual(t, oldLead, r.lead.Color)
	assert.Empty(t, r.table)
	assert.Empty(t, r.leadClue)
	assert.Equal(t, deckBefore-3, len(r.deck), "each remaining player drew a replacement")

	for _, p := range r.playingPlayers() {
		assert.Len(t, p.Cards, 7)
		assert.Equal(t, p.Color == r.lead.Color, p.IsAwaiting)
	}

	// An explicit resume continues with the reassigned lead.
	require.True(t, r.StartNextRound(r.players[0].Color))
	assert.Equal(t, StatusLeadChoosesCard, r.Status())
}

func TestForcedRemovalDuringChoose(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(4)...)
	require.True(t, r.Start())

	lead := r.findPlayer(r.lead.Color)
	require.True(t, r.LeadChooseCard(lead.Color, lead.Cards[0], "ocean"))

	others := nonLead(r)
	require.True(t, r.OtherPlayerChooseCard(others[0].Color, others[0].Cards[0]))

	r.Leave(lead.Color, true)

	assert.Equal(t, StatusRoundCanceled, r.Status())
	assert.Empty(t, r.table)

	// The player who already played got their card back; the rest never
	// gave one up. The removed lead's card left with them.
	for _, p := range r.playingPlayers() {
		assert.Len(t, p.Cards, 7)
	}
	assert.Equal(t, testDeckSize-7, cardCensus(r), "the removed lead took their hand and played card along")
}

func TestForcedRemovalBelowMinimumStopsGame(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(3)...)
	require.True(t, r.Start())
	advanceToVote(t, r, "ocean")

	r.Leave(nonLead(r)[0].Color, true)
	assert.Equal(t, StatusGameResults, r.Status())
}

func TestForcedRemovalMidVotePoolExhausted(t *testing.T) {
	r := newTestRoom(t, 29, playerIDs(4)...)
	require.True(t, r.Start())
	require.Len(t, r.deck, 1)
	advanceToVote(t, r, "ocean")

	r.Leave(r.lead.Color, true)
	assert.Equal(t, StatusGameResults, r.Status(), "no replacements to draw, so the game ends")
}

func TestCardConservationAcrossRounds(t *testing.T) {
	r := newTestRoom(t, testDeckSize, playerIDs(4)...)
	require.True(t, r.Start())

	for round := 0; round < 3; round++ {
		require.Equal(t, testDeckSize, cardCensus(r), "round %d", round)
		advanceToVote(t, r, "clue")
		require.Equal(t, testDeckSize, cardCensus(r), "round %d", round)

		others := nonLead(r)
		leadCard := tableCardOf(r, r.lead.Color)
		require.True(t, r.OtherPlayerVote(others[0].Color, leadCard.Card))
		require.True(t, r.OtherPlayerVote(others[1].Color, tableCardOf(r, others[0].Color).Card))
		require.True(t, r.OtherPlayerVote(others[2].Color, tableCardOf(r, others[0].Color).Card))

		require.Equal(t, testDeckSize, cardCensus(r), "round %d", round)
		require.True(t, r.StartNextRound(r.players[0].Color))
		require.Equal(t, testDeckSize, cardCensus(r), "round %d", round)
	}
}

func TestEmptinessAndFullness(t *testing.T) {
	r := newRoom("ABCDEF", testDeckSize, 7, seededRNG(7))
	assert.True(t, r.IsEmpty())
	assert.False(t, r.IsFull())

	for _, id := range playerIDs(maxPlayers) {
		_, ok := r.Join(id)
		require.True(t, ok)
	}
	assert.True(t, r.IsFull())
	assert.False(t, r.IsEmpty())

	for _, p := range append([]*Player(nil), r.players...) {
		r.Leave(p.Color, false)
	}
	assert.True(t, r.IsEmpty(), "a room of disconnected players counts as empty")
}
