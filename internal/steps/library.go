package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"zapp/internal/apiclient"
	"zapp/internal/driver"
	"zapp/internal/retry"
	"zapp/internal/template"
	"zapp/internal/variables"
	"zapp/internal/wait"
	"zapp/pkg/logging"
)

// ErrNoResponse is returned by the API assertions before any request was made.
var ErrNoResponse = errors.New("no API request was made in this scenario")

// Session is the state the step library works on. The lifecycle fills
// it in before the first scenario.
type Session struct {
	Driver driver.Driver
	Wait   *wait.Engine
	Vars   *variables.Store
	API    *apiclient.Client
	// Stand is the absolute URL of the test stand.
	Stand string

	mu       sync.Mutex
	response *apiclient.Response
}

// Platform reports the platform of the attached driver.
func (s *Session) Platform() driver.Platform {
	if s.Driver == nil {
		return driver.API
	}
	return s.Driver.Platform()
}

// Response returns the last API response.
func (s *Session) Response() *apiclient.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response
}

// ResetResponse forgets the last API response; called between scenarios.
func (s *Session) ResetResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response = nil
}

func (s *Session) setResponse(resp *apiclient.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response = resp
}

func (s *Session) variable(name string) (any, error) {
	if s.Vars == nil {
		return nil, &variables.NotFoundError{Name: name}
	}
	return s.Vars.Resolve(name)
}

func (s *Session) element(ctx context.Context, req wait.Request) (driver.Element, error) {
	return s.Wait.ForElement(ctx, req)
}

// NewLibrary returns a registry holding the built-in steps bound to s.
func NewLibrary(s *Session) (*Registry, error) {
	var resolver template.Resolver
	if s.Vars != nil {
		resolver = s.Vars
	}
	r := NewRegistry(s.Platform, resolver)
	if err := r.Add(Library(s)...); err != nil {
		return nil, err
	}
	return r, nil
}

var mobile = []driver.Platform{driver.Android, driver.IOS}

// Library returns the built-in step definitions in match order.
func Library(s *Session) []Definition {
	var defs []Definition
	add := func(section Section, doc string, h Handler, patterns ...string) {
		for _, p := range patterns {
			defs = append(defs, Definition{Pattern: p, Handler: h, Section: section, Doc: doc})
		}
	}
	addWeb := func(section Section, doc string, h Handler, patterns ...string) {
		for _, p := range patterns {
			defs = append(defs, Definition{
				Pattern: p, Handler: h, Section: section, Doc: doc,
				Unavailable: mobile, FailOnUnavailable: true,
			})
		}
	}

	add(SectionService, "Изменить задержку ожидания перед заведомо длительными действиями.",
		s.setSmartwaitDelay,
		`Я установил задержку ожидания загрузки элементов "{delay}" секунд`,
		`Я установил задержку ожидания загрузки элементов "{delay}" секунды`,
		`Я установил задержку ожидания загрузки элементов "{delay}" секунду`)
	add(SectionService, "Восстановить задержку ожидания на указанную при запуске тестов.",
		s.restoreSmartwaitDelay,
		`Я вернул задержку ожидания загрузки элементов на изначальную`)

	addWeb(SectionNavigation, "Открыть страницу тестового стенда.", s.goToMain,
		`Я перешел на главную страницу`,
		`Я вернулся на главную страницу`)
	addWeb(SectionNavigation, "Открыть страницу по имени из списка локаторов.", s.goToPage,
		`Я перешел на страницу "{target}"`)
	addWeb(SectionNavigation, "Открыть страницу, указанную в переменной.", s.goToURLFromVariable,
		`Я перешел по ссылке из переменной "{variable}"`)
	addWeb(SectionNavigation, "Перейти по ссылке относительно тестового стенда или стенда из переменной.",
		s.goToRelativeLink,
		`Я перешел по ссылке "{link}" с параметром "{link_appendix_var}" относительно стенда из переменной "{stand_var}"`,
		`Я перешел по ссылке "{link}" с параметром "{link_appendix_var}" относительно тестового стенда`,
		`Я перешел по ссылке "{link}" относительно стенда из переменной "{stand_var}"`,
		`Я перешел по ссылке "{link}" относительно тестового стенда`)
	addWeb(SectionNavigation, "Открыть указанный в шаге адрес.", s.goToURL,
		`Я перешел по ссылке "{url}"`)

	add(SectionClick, "Нажать на элемент из списка локаторов.", s.click,
		`Я нажал на кнопку "{target}"`,
		`Я нажал на "{target}"`)

	add(SectionInput, "Подставить в поле ввода значение переменной.", s.inputVariable,
		`Я ввел в поле "{target}" значение переменной "{variable}"`)
	add(SectionInput, "Ввести строку в поле из списка локаторов.", s.input,
		`Я ввел в поле "{target}" значение "{value}"`)
	defs = append(defs, Definition{
		Pattern:    `Я ввел в "{target}" значение "{value}"`,
		Handler:    s.input,
		Section:    SectionInput,
		Doc:        "Ввести строку в поле из списка локаторов.",
		Deprecated: `Я ввел в поле "{target}" значение "{value}"`,
	})
	add(SectionInput, "Очистить содержимое поля ввода.", s.clear,
		`Я очистил поле "{target}"`)

	add(SectionService, "Сохранить значение свойства или атрибута элемента в переменную.", s.saveProperty,
		`Я сохранил значение свойства "{property_name}" элемента "{target}" в переменную "{variable_name}"`)
	add(SectionService, "Сохранить значение элемента в переменную.", s.saveValue,
		`Я сохранил значение элемента "{target}" в переменную "{name}"`)

	addWeb(SectionService, "Выставить cookie с именем и значением.", s.setCookie,
		`Я выставил cookie с именем из переменной "{cookie_name_var}" и значением из переменной "{cookie_value_var}"`,
		`Я выставил cookie с именем "{cookie_name}" и значением "{cookie_value}"`)
	addWeb(SectionService, "Удалить все cookies текущего домена.", s.clearCookies,
		`Я очистил cookies`)

	addWeb(SectionValue, "Проверить, что текущий адрес содержит значение.", s.assertURLContains,
		`Я убедился что URL текущей страницы содержит строку "{value}"`,
		`Я убедился что URL текущей страницы содержит значение переменной "{variable}"`)

	add(SectionVisibility, "Проверить, что элемент с текстом виден.", s.assertTextVisible,
		`Я убедился что элемент с текстом "{text}" отображается`)
	add(SectionVisibility, "Проверить, что элемент с текстом не виден.", s.assertTextNotVisible,
		`Я убедился что элемент с текстом "{text}" не отображается`)
	add(SectionVisibility, "Проверить, что элемент виден.", s.assertVisible,
		`Я убедился что "{target}" отображается`,
		`Я убедился что поле "{target}" отображается`)
	add(SectionVisibility, "Проверить, что элемент не виден.", s.assertNotVisible,
		`Я убедился что "{target}" не отображается`,
		`Я убедился что поле "{target}" не отображается`)

	add(SectionClickability, "Проверить, что элемент виден и активен.", s.assertClickable,
		`Я убедился что "{target}" доступен для нажатия`,
		`Я убедился что "{target}" доступна для нажатия`,
		`Я убедился что "{target}" доступно для нажатия`)
	add(SectionClickability, "Проверить, что элемент виден, но не активен.", s.assertNotClickable,
		`Я убедился что "{target}" не доступен для нажатия`,
		`Я убедился что "{target}" не доступна для нажатия`,
		`Я убедился что "{target}" не доступно для нажатия`)

	add(SectionAPI, "Выполнить запрос к API.", s.apiRequest,
		`Я выполнил {method} запрос к "{url}" c аргументами {arguments}`,
		`Я выполнил {method} запрос к "{url}"`)
	add(SectionAPI, "Проверить, что ответ пришел с кодом 2XX.", s.assertResponseOK,
		`Я убедился что с сервера пришел ответ без ошибки`)
	add(SectionAPI, "Проверить, что ответ пришел с одним из кодов.", s.assertResponseStatus,
		`Я убедился что с сервера пришел ответ {status_codes}`)
	add(SectionAPI, "Сравнить значение поля ответа со значением или переменной.", s.assertResponseField,
		`Я убедился что в ответе с сервера поле "{field_name}" имеет значение переменной "{variable_name}"`,
		`Я убедился что в ответе с сервера поле "{field_name}" имеет значение "{field_value}"`)
	add(SectionAPI, "Сохранить ответ в переменную.", s.saveResponse,
		`Я сохранил ответ с сервера в переменную "{variable_name}"`)
	add(SectionAPI, "Сохранить значение поля ответа в переменную.", s.saveResponseField,
		`Я сохранил значение поля "{field_name}" из ответа с сервера в переменную "{variable_name}"`)

	return defs
}

// ParseDelay reads a delay in seconds; a decimal comma is accepted.
func ParseDelay(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (s *Session) setSmartwaitDelay(_ context.Context, args Args) error {
	if args["delay"] == "" {
		return nil
	}
	d, err := ParseDelay(args["delay"])
	if err != nil {
		return err
	}
	s.Wait.Timing.SetSmartwait(d)
	logging.Info("Steps", "Задержка ожидания загрузки элементов: %s", d)
	return nil
}

func (s *Session) restoreSmartwaitDelay(_ context.Context, _ Args) error {
	s.Wait.Timing.RestoreSmartwait()
	logging.Info("Steps", "Задержка ожидания загрузки элементов: %s", s.Wait.Timing.Smartwait())
	return nil
}

func (s *Session) open(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", raw)
	}
	logging.Debug("Steps", "GOING TO URL: %s", raw)
	return s.Driver.Get(raw)
}

func (s *Session) goToMain(_ context.Context, _ Args) error {
	return s.open(s.Stand)
}

func (s *Session) goToPage(_ context.Context, args Args) error {
	page, err := s.Wait.Locators.Lookup(args["target"])
	if err != nil {
		return err
	}
	return s.open(page)
}

func (s *Session) goToURLFromVariable(_ context.Context, args Args) error {
	v, err := s.variable(args["variable"])
	if err != nil {
		return err
	}
	return s.open(variables.String(v))
}

func (s *Session) goToURL(_ context.Context, args Args) error {
	return s.open(args["url"])
}

func (s *Session) goToRelativeLink(_ context.Context, args Args) error {
	abs, err := s.absoluteURL(args["link"], args["stand_var"], args["link_appendix_var"])
	if err != nil {
		return err
	}
	return s.open(abs)
}

// absoluteURL joins link and the optional appendix variable onto the test
// stand, or onto the stand read from standVar.
func (s *Session) absoluteURL(link, standVar, appendixVar string) (string, error) {
	stand := s.Stand
	if standVar != "" {
		v, err := s.variable(standVar)
		if err != nil {
			return "", err
		}
		stand = variables.String(v)
	}
	appendix := ""
	if appendixVar != "" {
		v, err := s.variable(appendixVar)
		if err != nil {
			return "", err
		}
		appendix = variables.String(v)
	}

	base, err := url.Parse(stand)
	if err != nil {
		return "", fmt.Errorf("invalid stand %q: %w", stand, err)
	}
	ref, err := joinLink(link, appendix)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// joinLink appends appendix to link without anchoring link at the root, so
// the result still resolves below the stand's path: "deals/" and "89" give
// "deals/89". An absolute or root-relative appendix replaces link.
func joinLink(link, appendix string) (*url.URL, error) {
	rel, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid link %q: %w", link, err)
	}
	if appendix == "" {
		return rel, nil
	}
	tail, err := url.Parse(appendix)
	if err != nil {
		return nil, fmt.Errorf("invalid link parameter %q: %w", appendix, err)
	}
	if tail.IsAbs() || tail.Host != "" || strings.HasPrefix(tail.Path, "/") {
		return tail, nil
	}

	joined := *rel
	joined.RawPath = ""
	if tail.Path != "" {
		joined.Path = rel.Path[:strings.LastIndex(rel.Path, "/")+1] + tail.Path
		joined.RawQuery = tail.RawQuery
	} else if tail.RawQuery != "" {
		joined.RawQuery = tail.RawQuery
	}
	joined.Fragment = tail.Fragment
	return &joined, nil
}

// interact locates the element and runs fn on it, both under the wait
// engine's transient-error policy. The element is located again on every
// attempt.
func (s *Session) interact(ctx context.Context, req wait.Request, fn func(driver.Element) error) error {
	_, err := elementDo(ctx, s, req, func(el driver.Element) (struct{}, error) {
		return struct{}{}, fn(el)
	})
	return err
}

func elementDo[T any](ctx context.Context, s *Session, req wait.Request, fn func(driver.Element) (T, error)) (T, error) {
	return retry.DoValue(ctx, s.Wait.Retry, func() (T, error) {
		el, err := s.element(ctx, req)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(el)
	})
}

func (s *Session) click(ctx context.Context, args Args) error {
	return s.interact(ctx, wait.Request{Target: args["target"], Condition: wait.Clickable}, driver.Element.Click)
}

func (s *Session) input(ctx context.Context, args Args) error {
	return s.sendKeys(ctx, args["target"], args["value"])
}

func (s *Session) inputVariable(ctx context.Context, args Args) error {
	v, err := s.variable(args["variable"])
	if err != nil {
		return err
	}
	return s.sendKeys(ctx, args["target"], variables.String(v))
}

func (s *Session) sendKeys(ctx context.Context, target, value string) error {
	if value == "" {
		logging.Warn("Steps", "Передано пустое значение на ввод в %q", target)
		return nil
	}
	return s.interact(ctx, wait.Request{Target: target}, func(el driver.Element) error {
		return el.SendKeys(value)
	})
}

func (s *Session) clear(ctx context.Context, args Args) error {
	return s.interact(ctx, wait.Request{Target: args["target"]}, driver.Element.Clear)
}

// elementValue is the visible text of an element, or its value attribute
// for inputs.
func elementValue(el driver.Element) (string, error) {
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	if text != "" {
		return text, nil
	}
	return el.GetAttribute("value")
}

func (s *Session) saveValue(ctx context.Context, args Args) error {
	value, err := elementDo(ctx, s, wait.Request{Target: args["target"]}, elementValue)
	if err != nil {
		return err
	}
	if value == "" {
		logging.Warn("Steps", "Не найден текст на элементе %q", args["target"])
		return nil
	}
	s.Vars.Set(args["name"], value)
	return nil
}

func (s *Session) saveProperty(ctx context.Context, args Args) error {
	req := wait.Request{Target: args["target"], Condition: wait.Presence}
	value, err := elementDo(ctx, s, req, func(el driver.Element) (string, error) {
		return el.GetAttribute(args["property_name"])
	})
	if err != nil {
		return err
	}
	if value == "" {
		logging.Warn("Steps", "Не найдено свойство %q у элемента %q", args["property_name"], args["target"])
		return nil
	}
	s.Vars.Set(args["variable_name"], value)
	return nil
}

func (s *Session) setCookie(_ context.Context, args Args) error {
	name, value := args["cookie_name"], args["cookie_value"]
	if args["cookie_name_var"] != "" {
		n, err := s.variable(args["cookie_name_var"])
		if err != nil {
			return err
		}
		v, err := s.variable(args["cookie_value_var"])
		if err != nil {
			return err
		}
		name, value = variables.String(n), variables.String(v)
	}
	if name == "" || value == "" {
		logging.Warn("Steps", "При попытке выставить cookie переданы пустые значения")
		return nil
	}
	if err := s.Driver.AddCookie(driver.Cookie{Name: name, Value: value}); err != nil {
		return err
	}
	logging.Debug("Steps", "Cookie %q=%q added to the current domain", name, value)
	return nil
}

func (s *Session) clearCookies(_ context.Context, _ Args) error {
	return s.Driver.DeleteAllCookies()
}

func (s *Session) assertURLContains(_ context.Context, args Args) error {
	want, ok := args["value"]
	if !ok {
		v, err := s.variable(args["variable"])
		if err != nil {
			return err
		}
		want = variables.String(v)
	}
	current, err := s.Driver.CurrentURL()
	if err != nil {
		return err
	}
	if !strings.Contains(current, want) {
		return fmt.Errorf("current url %q does not contain %q", current, want)
	}
	return nil
}

func textLocator(text string) string {
	return fmt.Sprintf("//*[contains(text(),'%s')]", text)
}

func (s *Session) assertVisible(ctx context.Context, args Args) error {
	_, err := s.element(ctx, wait.Request{Target: args["target"]})
	return err
}

func (s *Session) assertTextVisible(ctx context.Context, args Args) error {
	_, err := s.element(ctx, wait.Request{Locator: textLocator(args["text"])})
	return err
}

func (s *Session) assertNotVisible(ctx context.Context, args Args) error {
	return s.invisible(ctx, wait.Request{Target: args["target"], Condition: wait.Invisibility}, args["target"])
}

func (s *Session) assertTextNotVisible(ctx context.Context, args Args) error {
	req := wait.Request{Locator: textLocator(args["text"]), Condition: wait.Invisibility}
	return s.invisible(ctx, req, args["text"])
}

func (s *Session) invisible(ctx context.Context, req wait.Request, name string) error {
	res, err := s.Wait.Wait(ctx, req)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("element %q is still displayed", name)
	}
	return nil
}

func (s *Session) assertClickable(ctx context.Context, args Args) error {
	_, err := s.element(ctx, wait.Request{Target: args["target"], Condition: wait.Clickable})
	return err
}

func (s *Session) assertNotClickable(ctx context.Context, args Args) error {
	enabled, err := elementDo(ctx, s, wait.Request{Target: args["target"]}, driver.Element.IsEnabled)
	if err != nil {
		return err
	}
	if enabled {
		return fmt.Errorf("element %q is enabled", args["target"])
	}
	return nil
}

// requestArguments is the JSON object accepted by the API request step.
type requestArguments struct {
	Headers         map[string]any `json:"headers"`
	Params          map[string]any `json:"params"`
	JSON            any            `json:"json"`
	Data            string         `json:"data"`
	Retry           []float64      `json:"retry"`
	StandVar        string         `json:"stand_var"`
	LinkAppendixVar string         `json:"link_appendix_var"`
	LinkPostfix     string         `json:"link_postfix"`
}

func stringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = variables.String(v)
	}
	return out
}

func (s *Session) apiRequest(ctx context.Context, args Args) error {
	var ra requestArguments
	if raw := strings.TrimSpace(args["arguments"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ra); err != nil {
			return fmt.Errorf("invalid request arguments %s: %w", raw, err)
		}
	}

	target := args["url"]
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		abs, err := s.absoluteURL(target, ra.StandVar, ra.LinkAppendixVar)
		if err != nil {
			return err
		}
		target = abs
	}
	target += ra.LinkPostfix

	opts := apiclient.Options{
		Headers: stringMap(ra.Headers),
		Params:  stringMap(ra.Params),
		JSON:    ra.JSON,
		Data:    ra.Data,
	}
	if len(ra.Retry) == 2 {
		p := retry.Attempts(int(ra.Retry[0]), time.Duration(ra.Retry[1]*float64(time.Second)))
		opts.Retry = &p
	}

	var cookies []driver.Cookie
	if s.Driver != nil {
		c, err := s.Driver.Cookies()
		if err != nil {
			return err
		}
		cookies = c
	}

	resp, err := s.API.Request(ctx, strings.ToUpper(args["method"]), target, cookies, opts)
	if err != nil {
		return err
	}
	s.setResponse(resp)
	return nil
}

func (s *Session) lastResponse() (*apiclient.Response, error) {
	resp := s.Response()
	if resp == nil {
		return nil, ErrNoResponse
	}
	return resp, nil
}

func (s *Session) assertResponseOK(_ context.Context, _ Args) error {
	resp, err := s.lastResponse()
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%s %s answered %d", resp.Method, resp.URL, resp.StatusCode)
	}
	return nil
}

var statusCode = regexp.MustCompile(`\d{3}`)

func (s *Session) assertResponseStatus(_ context.Context, args Args) error {
	resp, err := s.lastResponse()
	if err != nil {
		return err
	}
	want := statusCode.FindAllString(args["status_codes"], -1)
	if len(want) == 0 {
		return fmt.Errorf("no status codes in %q", args["status_codes"])
	}
	if !slices.Contains(want, strconv.Itoa(resp.StatusCode)) {
		return fmt.Errorf("%s %s answered %d, expected one of %s", resp.Method, resp.URL, resp.StatusCode, strings.Join(want, ", "))
	}
	return nil
}

func (s *Session) assertResponseField(_ context.Context, args Args) error {
	resp, err := s.lastResponse()
	if err != nil {
		return err
	}
	want, ok := args["field_value"]
	if !ok {
		v, err := s.variable(args["variable_name"])
		if err != nil {
			return err
		}
		want = variables.String(v)
	}
	got, found, err := resp.Field(args["field_name"])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("field %q not found in the response", args["field_name"])
	}
	if variables.String(got) != want {
		return fmt.Errorf("field %q is %q, expected %q", args["field_name"], variables.String(got), want)
	}
	return nil
}

func (s *Session) saveResponse(_ context.Context, args Args) error {
	resp, err := s.lastResponse()
	if err != nil {
		return err
	}
	var doc any
	if err := resp.JSON(&doc); err != nil {
		return err
	}
	s.Vars.Set(args["variable_name"], doc)
	return nil
}

func (s *Session) saveResponseField(_ context.Context, args Args) error {
	resp, err := s.lastResponse()
	if err != nil {
		return err
	}
	v, found, err := resp.Field(args["field_name"])
	if err != nil {
		return err
	}
	if !found || v == nil {
		logging.Warn("Steps", "Поле %q не найдено в ответе с сервера", args["field_name"])
		return nil
	}
	s.Vars.Set(args["variable_name"], v)
	return nil
}
