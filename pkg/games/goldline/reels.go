package goldline

// Symbol names as they appear in states, outcomes, and the paytable.
const (
	symCherry    = "cherry"
	symBar       = "bar"
	symDoubleBar = "double_bar"
	symSeven     = "seven"
	symGold      = "gold"
	symWild      = "wild"
)

const (
	reelCount   = 3
	rowCount    = 3
	stripLength = 32
	lineCount   = 5
)

// Reel strips drive symbol weighting: cherry 10, bar 8, double_bar 6,
// seven 4, gold 3, wild 1 per strip, in certified order. A stop index s
// shows strip positions s, s+1, s+2 (mod strip length) top to bottom.
var strips = [reelCount][stripLength]string{
	{
		symCherry, symBar, symCherry, symDoubleBar, symBar, symCherry, symSeven,
		symCherry, symBar, symGold, symCherry, symDoubleBar, symBar, symCherry,
		symSeven, symDoubleBar, symCherry, symBar, symWild, symCherry, symGold,
		symBar, symDoubleBar, symCherry, symSeven, symBar, symCherry, symGold,
		symDoubleBar, symBar, symSeven, symDoubleBar,
	},
	{
		symBar, symCherry, symGold, symCherry, symDoubleBar, symCherry, symBar,
		symSeven, symCherry, symBar, symWild, symDoubleBar, symCherry, symGold,
		symBar, symCherry, symSeven, symCherry, symDoubleBar, symBar, symCherry,
		symGold, symSeven, symBar, symCherry, symDoubleBar, symCherry, symBar,
		symSeven, symDoubleBar, symBar, symDoubleBar,
	},
	{
		symCherry, symSeven, symBar, symCherry, symGold, symDoubleBar, symCherry,
		symBar, symCherry, symDoubleBar, symSeven, symCherry, symBar, symGold,
		symCherry, symWild, symBar, symCherry, symDoubleBar, symSeven, symCherry,
		symBar, symGold, symCherry, symDoubleBar, symBar, symSeven, symCherry,
		symBar, symDoubleBar, symBar, symDoubleBar,
	},
}

// paylines maps each line to the row it reads per reel: middle, top,
// bottom, then the two diagonals.
var paylines = [lineCount][reelCount]int{
	{1, 1, 1},
	{0, 0, 0},
	{2, 2, 2},
	{0, 1, 2},
	{2, 1, 0},
}

// paytable holds the three-of-a-kind bet multiplier per symbol.
var paytable = map[string]int64{
	symCherry:    2,
	symBar:       5,
	symDoubleBar: 10,
	symSeven:     20,
	symGold:      25,
	symWild:      100,
}

// symbolNames lists the certified symbol set in paytable order.
var symbolNames = []string{symCherry, symBar, symDoubleBar, symSeven, symGold, symWild}

// gridAt renders the visible window for a set of reel stops, indexed
// [reel][row].
func gridAt(stops []int64) [][]string {
	grid := make([][]string, reelCount)
	for reel := range grid {
		grid[reel] = make([]string, rowCount)
		for row := range grid[reel] {
			grid[reel][row] = strips[reel][(int(stops[reel])+row)%stripLength]
		}
	}
	return grid
}

// lineSymbol resolves a payline against the grid with wild substitution:
// the non-wild symbols must agree, three wilds pay as wild. Empty means no
// win on this line.
func lineSymbol(grid [][]string, line int) string {
	matched := ""
	for reel, row := range paylines[line] {
		sym := grid[reel][row]
		if sym == symWild {
			continue
		}
		if matched == "" {
			matched = sym
			continue
		}
		if sym != matched {
			return ""
		}
	}
	if matched == "" {
		return symWild
	}
	return matched
}

// forcedStops returns stops that land symbol across the middle line, used
// by the force-win debug path. The strips are built so every symbol occurs
// on every reel; ok is false only for a name outside the symbol set.
func forcedStops(symbol string) (stops []int64, ok bool) {
	if _, known := paytable[symbol]; !known {
		return nil, false
	}
	stops = make([]int64, reelCount)
	for reel := range strips {
		found := false
		for i := range strips[reel] {
			if strips[reel][(i+1)%stripLength] == symbol {
				stops[reel] = int64(i)
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return stops, true
}
