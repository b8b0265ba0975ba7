package geo

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"golang.org/x/text/encoding/simplifiedchinese"

	"tongjisync/internal/kv"
)

// serve starts handler on an in-memory listener and returns a client dialing it.
func serve(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
}

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

func TestTaobao_Lookup(t *testing.T) {
	var gotIP, gotKey string
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		gotIP = string(ctx.QueryArgs().Peek("ip"))
		gotKey = string(ctx.QueryArgs().Peek("accessKey"))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"code":0,"data":{"country":"中国","region":"广东","city":"深圳","region_id":"440000","city_id":"440300","isp":"电信"}}`)
	})
	p := &Taobao{Client: c, BaseURL: "http://taobao.test/outGetIpInfo", Timeout: time.Second}

	l, err := p.Lookup(context.Background(), "14.1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "14.1.2.3", gotIP)
	assert.Equal(t, "alibaba-inc", gotKey)
	assert.Equal(t, kv.Location{Country: "中国", Province: "广东", City: "深圳"}, l.Location)
	assert.Equal(t, "44", l.ProvinceCode)
	assert.Equal(t, "4403", l.CityCode)
}

func TestTaobao_UnknownMarkersAndForeign(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"code":0,"data":{"country":"美国","region":"XX","city":"XX","region_id":"xx","city_id":"xx"}}`)
	})
	p := &Taobao{Client: c, BaseURL: "http://taobao.test/", Timeout: time.Second}

	l, err := p.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, kv.Location{Country: "美国"}, l.Location)
	assert.Empty(t, l.ProvinceCode)
}

func TestTaobao_ErrorResponse(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"code":2,"msg":"query limit"}`)
	})
	p := &Taobao{Client: c, BaseURL: "http://taobao.test/", Timeout: time.Second}

	_, err := p.Lookup(context.Background(), "8.8.8.8")
	assert.ErrorIs(t, err, ErrProviderResponse)
}

func TestTaobao_HTTPStatus(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})
	p := &Taobao{Client: c, BaseURL: "http://taobao.test/", Timeout: time.Second}

	_, err := p.Lookup(context.Background(), "8.8.8.8")
	assert.ErrorIs(t, err, ErrProviderResponse)
}

func TestPConline_DomesticGBK(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "true", string(ctx.QueryArgs().Peek("json")))
		ctx.SetContentType("text/html; charset=GBK")
		ctx.SetBody(gbk(t, `{"ip":"14.1.2.3","pro":"广东省 ","proCode":"440000","city":"深圳市","cityCode":"440300","addr":"广东省深圳市 电信","err":""}`))
	})
	p := &PConline{Client: c, BaseURL: "http://pconline.test/ipJson.jsp", Timeout: time.Second}

	l, err := p.Lookup(context.Background(), "14.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, kv.Location{Country: "中国", Province: "广东省", City: "深圳市"}, l.Location)
	assert.Equal(t, "44", l.ProvinceCode)
	assert.Equal(t, "4403", l.CityCode)
}

func TestPConline_Foreign(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBody(gbk(t, `{"pro":"","proCode":"999999","city":"","cityCode":"0","addr":" 美国加利福尼亚州 ","err":"noprovince"}`))
	})
	p := &PConline{Client: c, BaseURL: "http://pconline.test/ipJson.jsp", Timeout: time.Second}

	l, err := p.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, kv.Location{Country: "美国"}, l.Location)
	assert.Empty(t, l.CityCode)
}

func TestGet_ContextDeadlineBoundsTimeout(t *testing.T) {
	c := serve(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
		ctx.SetBodyString(`{}`)
	})
	p := &Taobao{Client: c, BaseURL: "http://taobao.test/", Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Lookup(ctx, "8.8.8.8")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
