package ui

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"path"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	_ "golang.org/x/image/webp"

	"storefront/client/internal/catalog"
	"storefront/client/internal/logging"
)

var errNotDataURL = errors.New("ui: not a base64 data url")

// imageLoader подставляет картинки товаров в canvas.Image. Пока картинка
// качается и если скачать не удалось, показывается заглушка.
type imageLoader struct {
	mu       sync.Mutex
	cache    map[string]fyne.Resource
	wanted   map[*canvas.Image]string
	fetch    func(string) ([]byte, error)
	callOnUI func(func())
	logger   *logging.Logger
	wg       *sync.WaitGroup
	stopCh   <-chan struct{}
}

func newImageLoader(fetch func(string) ([]byte, error), callOnUI func(func()), logger *logging.Logger, wg *sync.WaitGroup, stopCh <-chan struct{}) *imageLoader {
	return &imageLoader{
		cache:    make(map[string]fyne.Resource),
		wanted:   make(map[*canvas.Image]string),
		fetch:    fetch,
		callOnUI: callOnUI,
		logger:   logger,
		wg:       wg,
		stopCh:   stopCh,
	}
}

// Bind вызывается из goroutine UI.
func (l *imageLoader) Bind(img *canvas.Image, src string) {
	if img == nil {
		return
	}
	if strings.TrimSpace(src) == "" {
		src = catalog.PlaceholderImage
	}
	placeholder := l.placeholder()

	l.mu.Lock()
	l.wanted[img] = src
	res, ok := l.cache[src]
	l.mu.Unlock()
	if ok {
		setImage(img, res)
		return
	}

	if strings.HasPrefix(src, "data:") {
		res, err := resourceFromDataURL(src)
		if err != nil {
			l.logger.Debugf("bad data url image: %v", err)
			res = placeholder
		}
		l.store(src, res)
		setImage(img, res)
		return
	}

	setImage(img, placeholder)
	if l.fetch == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		data, err := l.fetch(src)
		res := placeholder
		name := resourceName(src)
		switch {
		case err != nil || len(data) == 0:
			l.logger.Debugf("image %s not loaded, placeholder shown: %v", src, err)
		case !decodableImage(name, data):
			l.logger.Debugf("image %s is not a picture, placeholder shown", src)
		default:
			res = fyne.NewStaticResource(name, data)
		}
		l.store(src, res)
		select {
		case <-l.stopCh:
			return
		default:
		}
		l.callOnUI(func() {
			l.mu.Lock()
			current := l.wanted[img]
			l.mu.Unlock()
			if current == src {
				setImage(img, res)
			}
		})
	}()
}

func (l *imageLoader) placeholder() fyne.Resource {
	l.mu.Lock()
	res, ok := l.cache[catalog.PlaceholderImage]
	l.mu.Unlock()
	if ok {
		return res
	}
	res, err := resourceFromDataURL(catalog.PlaceholderImage)
	if err != nil {
		return nil
	}
	l.store(catalog.PlaceholderImage, res)
	return res
}

func (l *imageLoader) store(src string, res fyne.Resource) {
	l.mu.Lock()
	l.cache[src] = res
	l.mu.Unlock()
}

func setImage(img *canvas.Image, res fyne.Resource) {
	img.Resource = res
	img.Refresh()
}

// decodeDataURL разбирает data:<mime>;base64,<payload>.
func decodeDataURL(src string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return "", nil, errNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, errNotDataURL
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

func resourceFromDataURL(src string) (fyne.Resource, error) {
	mime, data, err := decodeDataURL(src)
	if err != nil {
		return nil, err
	}
	name := "image"
	if strings.Contains(mime, "svg") {
		name = "image.svg"
	}
	return fyne.NewStaticResource(name, data), nil
}

// decodableImage отсеивает ответы, которые Fyne не сможет нарисовать.
// SVG растровым декодером не проверить, его пропускаем по имени или началу тела.
func decodableImage(name string, data []byte) bool {
	if strings.EqualFold(path.Ext(name), ".svg") {
		return true
	}
	head := bytes.TrimSpace(data)
	if bytes.HasPrefix(head, []byte("<svg")) || bytes.HasPrefix(head, []byte("<?xml")) {
		return true
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}

// resourceName сохраняет расширение файла: по нему Fyne узнаёт SVG.
func resourceName(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}
