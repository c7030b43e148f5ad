package service

// ConfusableGroups lists characters that are easily mistaken for one another
// in a browser address bar. Two runes are confusable when they share a group.
// Contents are a tuning knob; the matching rule only relies on the shape.
var ConfusableGroups = [][]rune{
	{'a', '@', 'à', 'á', 'â', 'ã', 'ä', 'å', 'ā', 'α', 'а'},
	{'b', '6', 'ь'},
	{'c', 'ç', 'ć', 'č', 'с', 'ϲ'},
	{'d', 'ԁ', 'ď'},
	{'e', '3', 'è', 'é', 'ê', 'ë', 'ē', 'ė', 'ę', 'е'},
	{'g', '9', 'q', 'ǵ', 'ğ'},
	{'h', 'һ'},
	{'i', '1', 'l', '!', 'í', 'ì', 'î', 'ï', 'ı', 'і'},
	{'j', 'ј'},
	{'k', 'κ', 'к'},
	{'l', '1', 'i', '|', 'ӏ', 'ł'},
	{'n', 'ñ', 'ń', 'η', 'п'},
	{'o', '0', 'ò', 'ó', 'ô', 'õ', 'ö', 'ø', 'ō', 'ο', 'о'},
	{'p', 'ρ', 'р'},
	{'r', 'г'},
	{'s', '5', '$', 'ś', 'š', 'ѕ'},
	{'t', '7', 'τ', 'т'},
	{'u', 'ù', 'ú', 'û', 'ü', 'ū', 'υ'},
	{'v', 'ν', 'ѵ'},
	{'w', 'ω', 'ѡ'},
	{'x', 'χ', 'х'},
	{'y', 'ý', 'ÿ', 'γ', 'у'},
	{'z', '2', 'ź', 'ż', 'ž'},
	{'-', '_', '–'},
}

// confusables maps each rune to the set of runes it shares a group with.
var confusables = buildConfusables(ConfusableGroups)

func buildConfusables(groups [][]rune) map[rune]map[rune]struct{} {
	out := make(map[rune]map[rune]struct{})
	for _, group := range groups {
		for _, r := range group {
			set, ok := out[r]
			if !ok {
				set = make(map[rune]struct{})
				out[r] = set
			}
			for _, other := range group {
				if other != r {
					set[other] = struct{}{}
				}
			}
		}
	}
	return out
}

func isConfusable(a, b rune) bool {
	if a == b {
		return true
	}
	_, ok := confusables[a][b]
	return ok
}

// homoglyphEqual reports whether candidate renders like target: same number
// of runes, at least one difference, and every differing pair confusable.
func homoglyphEqual(candidate, target string) bool {
	rc, rt := []rune(candidate), []rune(target)
	if len(rc) != len(rt) {
		return false
	}
	differs := false
	for i := range rc {
		if rc[i] == rt[i] {
			continue
		}
		if !isConfusable(rc[i], rt[i]) {
			return false
		}
		differs = true
	}
	return differs
}
