/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"

	"github.com/enescakir/emoji"
)

// Color is an identity token drawn from a fixed palette. It doubles as the
// stable public identifier for a player within a room: it is never reused
// while the player's record exists, and is recycled only after the player
// has been permanently removed.
type Color string

const (
	ColorOrange Color = "ORANGE"
	ColorGreen  Color = "GREEN"
	ColorBlue   Color = "BLUE"
	ColorRed    Color = "RED"
	ColorBrown  Color = "BROWN"
	ColorPurple Color = "PURPLE"
	ColorCyan   Color = "CYAN"
	ColorYellow Color = "YELLOW"
	ColorPink   Color = "PINK"
	ColorOlive  Color = "OLIVE"
)

var allColors = []Color{
	ColorOrange,
	ColorGreen,
	ColorBlue,
	ColorRed,
	ColorBrown,
	ColorPurple,
	ColorCyan,
	ColorYellow,
	ColorPink,
	ColorOlive,
}

// Player holds the data we store server-side for one participant.
// Hands never leave the server except in the owner's own projection.
type Player struct {
	ID         string
	Color      Color
	Score      int
	Cards      []Card
	IsLeft     bool
	IsPlaying  bool
	IsAwaiting bool
}

func (p *Player) hasCard(id Card) bool {
	for _, c := range p.Cards {
		if c == id {
			return true
		}
	}

	return false
}

// removeCard reports whether the card was in the player's hand.
func (p *Player) removeCard(id Card) bool {
	for i, c := range p.Cards {
		if c == id {
			p.Cards = append(p.Cards[:i], p.Cards[i+1:]...)
			return true
		}
	}

	return false
}

var avatars = []struct {
	icon emoji.Emoji
	name string
}{
	{emoji.DogFace, "DOG"},
	{emoji.Fox, "FOX"},
	{emoji.CatFace, "CAT"},
	{emoji.Lion, "LION"},
	{emoji.TigerFace, "TIGER"},
	{emoji.CowFace, "COW"},
	{emoji.PigFace, "PIG"},
	{emoji.MouseFace, "MOUSE"},
	{emoji.Hamster, "HAMSTER"},
	{emoji.RabbitFace, "RABBIT"},
	{emoji.Bear, "BEAR"},
	{emoji.Panda, "PANDA"},
	{emoji.Koala, "KOALA"},
	{emoji.MonkeyFace, "MONKEY"},
	{emoji.Chicken, "CHICKEN"},
	{emoji.BabyChick, "BABY CHICK"},
	{emoji.Bird, "BIRD"},
	{emoji.Penguin, "PENGUIN"},
	{emoji.Frog, "FROG"},
}

// avatarIndex folds the digits of a player id into an index, so the same id
// always maps to the same animal across reconnects.
func avatarIndex(id string) int {
	n := 0
	for _, r := range id {
		if r >= '0' && r <= '9' {
			n = (n*10 + int(r-'0')) % len(avatars)
		}
	}

	return n
}

func playerAvatar(id string) string {
	return avatars[avatarIndex(id)].icon.String()
}

// playerName derives a "Color Animal" display name, e.g. "Olive Penguin".
func playerName(id string, color Color) string {
	return capitalize(string(color)) + " " + capitalize(avatars[avatarIndex(id)].name)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
