package validation

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

// Константы валидации
const (
	MinUsernameLength          = 3
	MaxUsernameLength          = 30
	MinDisplayNameLength       = 2
	MaxDisplayNameLength       = 100
	MinProjectTitleLength      = 5
	MaxProjectTitleLength      = 200
	MinProjectDescriptionLen   = 20
	MaxProjectDescriptionLen   = 10000
	MinCoverLetterLength       = 20
	MaxCoverLetterLength       = 5000
	MaxNegotiationMessageLen   = 2000
	MaxInvitationMessageLength = 2000
	MinPortfolioTitleLength    = 1
	MaxPortfolioTitleLength    = 200
	MaxPortfolioTextLength     = 5000
	MaxBioLength               = 2000
	MaxLocationLength          = 100
	MaxSkillLength             = 50
	MaxSkillsCount             = 50
	MaxBudget                  = 10000000.0
	MaxHourlyRate              = 10000.0
	MaxMilestones              = 50
	MaxDeliveryDays            = 730
	MinMessageLength           = 1
	MaxMessageLength           = 5000
	MaxReviewCommentLength     = 2000
	MaxExternalLinkLength      = 500
	MaxTaxIDLength             = 32
)

var (
	emailLocalRegex  = regexp.MustCompile(`^[a-z0-9._+-]+$`)
	emailDomainRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	usernameRegex    = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	displayNameRegex = regexp.MustCompile(`^[\p{L}0-9\s\-_.,!?()'&]+$`)
	countryRegex     = regexp.MustCompile(`^[A-Z]{2}$`)
	currencyRegex    = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateOptionalLength проверяет необязательное текстовое поле.
func ValidateOptionalLength(fieldName string, value *string, max int) error {
	if value == nil {
		return nil
	}
	return ValidateLength(fieldName, strings.TrimSpace(*value), 0, max)
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart, domainPart := parts[0], parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}
	if !emailLocalRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}
	if !emailDomainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateDisplayName проверяет отображаемое имя.
func ValidateDisplayName(displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("отображаемое имя обязательно")
	}

	if err := ValidateLength("отображаемое имя", displayName, MinDisplayNameLength, MaxDisplayNameLength); err != nil {
		return err
	}

	if !displayNameRegex.MatchString(displayName) {
		return fmt.Errorf("отображаемое имя содержит недопустимые символы")
	}

	return nil
}

// ValidateRole проверяет роль, выбранную при регистрации.
func ValidateRole(role string) error {
	if _, ok := models.ValidRoles[role]; !ok {
		return fmt.Errorf("роль должна быть client или freelancer")
	}
	return nil
}

// ValidateProjectTitle проверяет заголовок проекта.
func ValidateProjectTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("заголовок проекта обязателен")
	}
	return ValidateLength("заголовок проекта", title, MinProjectTitleLength, MaxProjectTitleLength)
}

// ValidateProjectDescription проверяет описание проекта.
func ValidateProjectDescription(description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return fmt.Errorf("описание проекта обязательно")
	}
	return ValidateLength("описание проекта", description, MinProjectDescriptionLen, MaxProjectDescriptionLen)
}

// ValidateCategory проверяет категорию рекламных услуг.
func ValidateCategory(category string) error {
	if _, ok := models.ValidCategories[category]; !ok {
		return fmt.Errorf("неизвестная категория услуг: %s", category)
	}
	return nil
}

// ValidateCategories проверяет список категорий профиля.
func ValidateCategories(categories []string) error {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if err := ValidateCategory(c); err != nil {
			return err
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("категория '%s' указана дважды", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// ValidateAmount проверяет денежную сумму: положительная, не больше MaxBudget, не точнее цента.
func ValidateAmount(fieldName string, amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%s должна быть положительной", fieldName)
	}
	if amount > MaxBudget {
		return fmt.Errorf("%s не может превышать %.0f", fieldName, MaxBudget)
	}
	if cents := amount * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
		return fmt.Errorf("%s должна быть указана с точностью до цента", fieldName)
	}
	return nil
}

// ValidateCurrency проверяет код валюты ISO 4217.
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("валюта должна быть трёхбуквенным кодом ISO 4217")
	}
	return nil
}

// ValidateCountryCode проверяет код страны ISO 3166-1 alpha-2.
func ValidateCountryCode(code *string) error {
	if code == nil || *code == "" {
		return nil
	}
	if !countryRegex.MatchString(*code) {
		return fmt.Errorf("код страны должен состоять из двух заглавных латинских букв")
	}
	return nil
}

// ValidateDeliveryDays проверяет срок выполнения.
func ValidateDeliveryDays(days int) error {
	if days < 1 || days > MaxDeliveryDays {
		return fmt.Errorf("срок выполнения должен быть от 1 до %d дней", MaxDeliveryDays)
	}
	return nil
}

// ValidateMilestonePlan проверяет план этапов. Если total > 0,
// сумма этапов должна с ним совпадать до цента.
func ValidateMilestonePlan(plan models.MilestonePlan, total float64) error {
	if len(plan) > MaxMilestones {
		return fmt.Errorf("этапов не может быть больше %d", MaxMilestones)
	}
	for i, m := range plan {
		if err := ValidateNonEmpty(fmt.Sprintf("название этапа %d", i+1), m.Title); err != nil {
			return err
		}
		if err := ValidateAmount(fmt.Sprintf("сумма этапа %d", i+1), m.Amount); err != nil {
			return err
		}
		if m.DueInDays < 0 {
			return fmt.Errorf("срок этапа %d не может быть отрицательным", i+1)
		}
	}
	if total > 0 && len(plan) > 0 && math.Abs(plan.Total()-total) >= 0.005 {
		return fmt.Errorf("сумма этапов (%.2f) не совпадает с общей суммой (%.2f)", plan.Total(), total)
	}
	return nil
}

// ValidateCoverLetter проверяет сопроводительное письмо.
func ValidateCoverLetter(coverLetter string) error {
	coverLetter = strings.TrimSpace(coverLetter)
	if coverLetter == "" {
		return fmt.Errorf("сопроводительное письмо обязательно")
	}
	return ValidateLength("сопроводительное письмо", coverLetter, MinCoverLetterLength, MaxCoverLetterLength)
}

// ValidateHourlyRate проверяет почасовую ставку.
func ValidateHourlyRate(rate *float64) error {
	if rate == nil {
		return nil
	}
	if *rate < 0 {
		return fmt.Errorf("почасовая ставка не может быть отрицательной")
	}
	if *rate > MaxHourlyRate {
		return fmt.Errorf("почасовая ставка не может превышать %.0f", MaxHourlyRate)
	}
	return nil
}

// ValidateSkills проверяет массив навыков.
func ValidateSkills(skills []string) error {
	if len(skills) > MaxSkillsCount {
		return fmt.Errorf("количество навыков не может превышать %d", MaxSkillsCount)
	}

	seen := make(map[string]bool)
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			return fmt.Errorf("навык не может быть пустым")
		}
		if utf8.RuneCountInString(skill) > MaxSkillLength {
			return fmt.Errorf("навык не может быть длиннее %d символов", MaxSkillLength)
		}

		// Дубликаты без учета регистра
		skillLower := strings.ToLower(skill)
		if seen[skillLower] {
			return fmt.Errorf("навык '%s' указан дважды", skill)
		}
		seen[skillLower] = true
	}

	return nil
}

// ValidateExternalLink проверяет внешнюю ссылку.
func ValidateExternalLink(link *string) error {
	if link == nil || *link == "" {
		return nil
	}
	linkStr := strings.TrimSpace(*link)

	if err := ValidateLength("внешняя ссылка", linkStr, 0, MaxExternalLinkLength); err != nil {
		return err
	}

	parsedURL, err := url.Parse(linkStr)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}
	return nil
}

// ValidateMessageContent проверяет содержимое сообщения.
func ValidateMessageContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("сообщение не может быть пустым")
	}
	return ValidateLength("сообщение", content, MinMessageLength, MaxMessageLength)
}

// ValidateRating проверяет оценку отзыва.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("оценка должна быть от 1 до 5")
	}
	return nil
}
