/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package keyboard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Action is what a key press asks for.
type Action string

const (
	MoveUp    Action = "move-up"
	MoveDown  Action = "move-down"
	MoveLeft  Action = "move-left"
	MoveRight Action = "move-right"
	Clear     Action = "clear"
	Next      Action = "next"
	Previous  Action = "previous"
	FocusUnit Action = "focus-unit"
)

// Command is an action plus its argument. Arg is the 1-based unit number for FocusUnit.
type Command struct {
	Action Action
	Arg    int
}

func (c Command) String() string {
	if c.Action == FocusUnit {
		return fmt.Sprintf("%s-%d", c.Action, c.Arg)
	}
	return string(c.Action)
}

// ParseCommand reads the names used in config files, e.g. "move-up" or "focus-unit-3".
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch a := Action(s); a {
	case MoveUp, MoveDown, MoveLeft, MoveRight, Clear, Next, Previous:
		return Command{Action: a}, nil
	}
	if rest, ok := strings.CutPrefix(s, string(FocusUnit)+"-"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n > 0 {
			return Command{Action: FocusUnit, Arg: n}, nil
		}
	}
	return Command{}, fmt.Errorf("unknown key action %q", s)
}

// Keymap maps normalized key chords to commands.
type Keymap map[string]Command

// DefaultKeymap returns the built-in bindings.
func DefaultKeymap() Keymap {
	km := Keymap{
		"alt+up":    {Action: MoveUp},
		"alt+down":  {Action: MoveDown},
		"alt+left":  {Action: MoveLeft},
		"alt+right": {Action: MoveRight},
		"escape":    {Action: Clear},
		"j":         {Action: Next},
		"k":         {Action: Previous},
	}
	for i := 1; i <= 9; i++ {
		km["alt+"+strconv.Itoa(i)] = Command{Action: FocusUnit, Arg: i}
	}
	return km
}

// Merge returns a copy of km with overrides applied. Keys are chords, values
// command names; an empty value removes the binding.
func (km Keymap) Merge(overrides map[string]string) (Keymap, error) {
	out := make(Keymap, len(km)+len(overrides))
	for k, v := range km {
		out[k] = v
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		chord := NormalizeKey(k)
		if chord == "" {
			return nil, fmt.Errorf("empty key chord")
		}
		if strings.TrimSpace(overrides[k]) == "" {
			delete(out, chord)
			continue
		}
		cmd, err := ParseCommand(overrides[k])
		if err != nil {
			return nil, fmt.Errorf("keymap %q: %w", k, err)
		}
		out[chord] = cmd
	}
	return out, nil
}

var modOrder = map[string]int{"ctrl": 0, "alt": 1, "shift": 2, "meta": 3}

var keyAliases = map[string]string{
	"arrowup": "up", "arrowdown": "down", "arrowleft": "left", "arrowright": "right",
	"esc": "escape", "option": "alt", "control": "ctrl", "cmd": "meta", "command": "meta",
}

// NormalizeKey lowercases a chord, resolves aliases and orders modifiers, so
// "Shift+Alt+ArrowUp" and "alt+shift+up" compare equal.
func NormalizeKey(s string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	var mods []string
	key := ""
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if a, ok := keyAliases[p]; ok {
			p = a
		}
		if p == "" {
			continue
		}
		if _, ok := modOrder[p]; ok {
			mods = append(mods, p)
			continue
		}
		key = p
	}
	sort.Slice(mods, func(i, j int) bool { return modOrder[mods[i]] < modOrder[mods[j]] })
	if key == "" {
		return strings.Join(mods, "+")
	}
	return strings.Join(append(mods, key), "+")
}
