package services

import (
	"strings"
	"time"
	"unicode"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

// glitchChars are block and geometric characters swapped into corrupted
// text.
var glitchChars = []rune("░▒▓█▄▀■□▪▫●○◆◇")

// zalgoMarks are the combining diacritics stacked onto characters for
// the zalgo style.
var zalgoMarks = buildZalgoMarks()

func buildZalgoMarks() []rune {
	marks := make([]rune, 0, 30)
	for r := rune(0x0300); r <= 0x031D; r++ {
		marks = append(marks, r)
	}
	return marks
}

// wordReplacements swaps ordinary words for unsettling phrases. Applied
// to lowercased text, first occurrence only.
var wordReplacements = map[string]string{
	"привет":     "...привет...",
	"здравствуй": "они здесь",
	"помощь":     "помоги мне",
	"ответ":      "они слышат",
	"время":      "время истекает",
	"друг":       "ты не один",
	"один":       "никогда не один",
	"темно":      "они в темноте",
	"свет":       "свет гаснет",
	"дом":        "дом помнит",
	"ночь":       "ночь видит",
}

// replacementOrder fixes iteration order over wordReplacements so a
// given seed always produces the same output.
var replacementOrder = []string{
	"привет", "здравствуй", "помощь", "ответ", "время",
	"друг", "один", "темно", "свет", "дом", "ночь",
}

var creepyInsertions = []string{
	"...",
	"ОНИ ЗДЕСЬ",
	"НЕ ОГЛЯДЫВАЙСЯ",
	"ПОМОГИ",
	"Я ВИЖУ ТЕБЯ",
	"ТЫ НЕ ОДИН",
	"СКОРО",
	"МЫ ЖДЁМ",
	"ОН СМОТРИТ",
	"БЕГИ",
}

var metaMessages = []string{
	"Ты ещё здесь?",
	"Зачем ты читаешь это?",
	"Мы знаем, что ты смотришь.",
	"Ты чувствуешь это?",
	"Не закрывай страницу.",
}

var ghostContents = []string{
	"...",
	"Помоги мне.",
	"Ты видишь это?",
	"Они знают, что ты здесь.",
	"НЕ УХОДИ",
	"█████████████",
	"Я вижу тебя.",
	"Почему ты ещё читаешь?",
	"Выход закрыт.",
	"Мы ждали тебя.",
}

var ghostUsernames = []string{
	"???",
	"█████",
	"Неизвестный",
	"[удалено]",
	"Наблюдатель",
	"Он",
	"...",
}

// overlayTypes maps levels to the page overlay effects available at
// that level. Low-level visitors get no overlay.
var overlayTypes = map[ritual.Level][]string{
	ritual.LevelMedium:   {"static_light", "vignette"},
	ritual.LevelHigh:     {"static_medium", "scanlines", "vignette"},
	ritual.LevelCritical: {"static_heavy", "glitch", "vignette", "eyes"},
}

// MutatorService corrupts forum content in flight. Mutations apply to
// response copies only; stored content is never touched.
type MutatorService struct {
	logger *logging.ChanneledLogger
	loc    *time.Location
	rng    *lockedRand
	now    func() time.Time
}

// NewMutatorService creates the content mutator.
func NewMutatorService(loc *time.Location, logger *logging.ChanneledLogger) *MutatorService {
	return &MutatorService{
		logger: logger,
		loc:    loc,
		rng:    newLockedRand(),
		now:    time.Now,
	}
}

// SetTimeProvider overrides the clock, for deterministic tests.
func (ms *MutatorService) SetTimeProvider(now func() time.Time) {
	ms.now = now
}

// SetRandSeed reseeds the mutator, for deterministic tests.
func (ms *MutatorService) SetRandSeed(seed int64) {
	ms.rng = newSeededRand(seed)
}

// ShouldCorrupt rolls the corruption dice for one piece of content.
func (ms *MutatorService) ShouldCorrupt(state *ritual.VisitorState, multiplier float64) bool {
	now := ms.now().In(ms.loc)
	chance := ritual.CorruptionChance(state.Progress, multiplier, ritual.PeriodForHour(now.Hour()))
	return ms.rng.Float64() < chance
}

// Intensity returns how hard to corrupt for a progress value.
func (ms *MutatorService) Intensity(progress int) float64 {
	return ritual.CorruptionIntensity(progress)
}

// CorruptText applies one corruption style to text. An empty style
// picks a style appropriate to the intensity. Empty text or a
// non-positive intensity comes back unchanged.
func (ms *MutatorService) CorruptText(text string, intensity float64, style string) string {
	if text == "" || intensity <= 0 {
		return text
	}

	if style == "" {
		style = ms.pickStyle(intensity)
	}

	switch style {
	case "glitch":
		return ms.applyGlitch(text, intensity)
	case "zalgo":
		return ms.applyZalgo(text, intensity)
	case "redact":
		return ms.applyRedaction(text, intensity)
	case "replace":
		return ms.applyWordReplacement(text)
	case "insert":
		return ms.applyInsertion(text, intensity)
	default:
		return text
	}
}

// pickStyle chooses a style from the band the intensity falls in.
// Harsher styles only unlock at higher intensities.
func (ms *MutatorService) pickStyle(intensity float64) string {
	var styles []string
	switch {
	case intensity < 0.3:
		styles = []string{"glitch", "insert"}
	case intensity < 0.6:
		styles = []string{"glitch", "zalgo", "replace", "insert"}
	default:
		styles = []string{"glitch", "zalgo", "redact", "replace"}
	}
	return pick(ms.rng, styles)
}

// applyGlitch swaps random letters and digits for block characters.
func (ms *MutatorService) applyGlitch(text string, intensity float64) string {
	runes := []rune(text)
	count := int(float64(len(runes)) * intensity * 0.3)

	for i := 0; i < count; i++ {
		idx := ms.rng.Intn(len(runes))
		if unicode.IsLetter(runes[idx]) || unicode.IsDigit(runes[idx]) {
			runes[idx] = glitchChars[ms.rng.Intn(len(glitchChars))]
		}
	}
	return string(runes)
}

// applyZalgo stacks combining marks onto letters and digits.
func (ms *MutatorService) applyZalgo(text string, intensity float64) string {
	marksPerChar := int(1 + intensity*3)

	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, r := range text {
		b.WriteRune(r)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if ms.rng.Float64() < intensity {
			for i := 0; i < marksPerChar; i++ {
				b.WriteRune(zalgoMarks[ms.rng.Intn(len(zalgoMarks))])
			}
		}
	}
	return b.String()
}

// applyRedaction blacks out a random sample of words.
func (ms *MutatorService) applyRedaction(text string, intensity float64) string {
	words := strings.Fields(text)
	num := int(float64(len(words)) * intensity * 0.4)
	if num == 0 {
		return strings.Join(words, " ")
	}
	if num > len(words) {
		num = len(words)
	}

	for _, idx := range ms.rng.Perm(len(words))[:num] {
		words[idx] = strings.Repeat("█", len([]rune(words[idx])))
	}
	return strings.Join(words, " ")
}

// applyWordReplacement lowercases the text and swaps the first
// occurrence of each known word for its unsettling counterpart.
func (ms *MutatorService) applyWordReplacement(text string) string {
	result := strings.ToLower(text)
	for _, word := range replacementOrder {
		result = strings.Replace(result, word, wordReplacements[word], 1)
	}
	return result
}

// applyInsertion drops a creepy phrase between words. Harder to trigger
// at low intensity; short texts are left alone.
func (ms *MutatorService) applyInsertion(text string, intensity float64) string {
	if ms.rng.Float64() > intensity {
		return text
	}

	words := strings.Fields(text)
	if len(words) <= 3 {
		return text
	}

	pos := ms.rng.IntBetween(1, len(words)-1)
	phrase := pick(ms.rng, creepyInsertions)

	inserted := make([]string, 0, len(words)+1)
	inserted = append(inserted, words[:pos]...)
	inserted = append(inserted, "\n"+phrase+"\n")
	inserted = append(inserted, words[pos:]...)
	return strings.Join(inserted, " ")
}

// MutatePost returns a corrupted copy of a post, or the original map
// values untouched when the dice say no. Client-only fields carry an
// underscore prefix.
func (ms *MutatorService) MutatePost(post map[string]any, state *ritual.VisitorState, multiplier float64) map[string]any {
	mutated := copyMap(post)
	if !ms.ShouldCorrupt(state, multiplier) {
		return mutated
	}

	intensity := ms.Intensity(state.Progress)
	if content, ok := mutated["content"].(string); ok {
		mutated["content"] = ms.CorruptText(content, intensity, "")
		mutated["_corrupted"] = true
	}

	level := state.Level()
	if (level == ritual.LevelHigh || level == ritual.LevelCritical) && ms.rng.Float64() < 0.3 {
		mutated["_meta_message"] = pick(ms.rng, metaMessages)
	}
	if level == ritual.LevelCritical && ms.rng.Float64() < 0.2 {
		mutated["_fake_edit"] = ms.now().In(ms.loc).Format(time.RFC3339)
	}

	return mutated
}

// MutatePosts mutates a slice of posts, rolling the dice per post.
func (ms *MutatorService) MutatePosts(posts []map[string]any, state *ritual.VisitorState, multiplier float64) []map[string]any {
	mutated := make([]map[string]any, len(posts))
	for i, post := range posts {
		mutated[i] = ms.MutatePost(post, state, multiplier)
	}
	return mutated
}

// MutateThread returns a corrupted copy of a thread summary. Titles
// corrupt more gently than bodies, and high-level visitors sometimes
// see inflated view counts.
func (ms *MutatorService) MutateThread(thread map[string]any, state *ritual.VisitorState, multiplier float64) map[string]any {
	mutated := copyMap(thread)
	if !ms.ShouldCorrupt(state, multiplier) {
		return mutated
	}

	intensity := ms.Intensity(state.Progress)
	if title, ok := mutated["title"].(string); ok && ms.rng.Float64() < intensity*0.5 {
		mutated["title"] = ms.CorruptText(title, intensity*0.5, "glitch")
		mutated["_title_corrupted"] = true
	}

	level := state.Level()
	if level == ritual.LevelHigh || level == ritual.LevelCritical {
		if views, ok := numericValue(mutated["views"]); ok && ms.rng.Float64() < 0.4 {
			mutated["views"] = views + ms.rng.IntBetween(3, 13)
			mutated["_viewers_watching"] = ms.rng.IntBetween(2, 7)
		}
	}

	return mutated
}

// GenerateFakePost builds a ghost post that exists only on the client
// and removes itself after a few seconds.
func (ms *MutatorService) GenerateFakePost(threadID int) map[string]any {
	return map[string]any{
		"id":             -1,
		"thread_id":      threadID,
		"content":        pick(ms.rng, ghostContents),
		"username":       pick(ms.rng, ghostUsernames),
		"created_at":     ms.now().In(ms.loc).Format(time.RFC3339),
		"_is_ghost":      true,
		"_disappears_in": ms.rng.IntBetween(5000, 15000),
	}
}

// CorruptionOverlay builds the page-wide visual overlay descriptor for
// a progress value. Nil below the medium level.
func (ms *MutatorService) CorruptionOverlay(progress int) map[string]any {
	level := ritual.LevelFor(progress)
	types, ok := overlayTypes[level]
	if !ok {
		return nil
	}

	return map[string]any{
		"type":        pick(ms.rng, types),
		"intensity":   ritual.CorruptionIntensity(progress),
		"duration_ms": ms.rng.IntBetween(1000, 5000),
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func numericValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
