// internal/telemetry/citycodes.go
package telemetry

import "strings"

// UnknownCityCode is sent when the city name cannot be resolved.
const UnknownCityCode = 999

// cityCodes maps city names (Chinese and pinyin) to the numeric codes
// the device firmware renders. Keys are lowercase.
var cityCodes = map[string]int{
	"未知": 999, "error": 999,
	"杭州": 0, "hangzhou": 0,
	"上海": 1, "shanghai": 1,
	"北京": 2, "beijing": 2,
	"广州": 3, "guangzhou": 3,
	"深圳": 4, "shenzhen": 4,
	"成都": 5, "chengdu": 5,
	"重庆": 6, "chongqing": 6,
	"武汉": 7, "wuhan": 7,
	"西安": 8, "xian": 8,
	"南京": 9, "nanjing": 9,
	"天津": 10, "tianjin": 10,
	"苏州": 11, "suzhou": 11,
	"青岛": 12, "qingdao": 12,
	"厦门": 13, "xiamen": 13,
	"长沙": 14, "changsha": 14,
	"石家庄": 15, "shijiazhuang": 15,
	"唐山": 16, "tangshan": 16,
	"秦皇岛": 17, "qinhuangdao": 17,
	"邯郸": 18, "handan": 18,
	"邢台": 19, "xingtai": 19,
	"保定": 20, "baoding": 20,
	"张家口": 21, "zhangjiakou": 21,
	"承德": 22, "chengde": 22,
	"沧州": 23, "cangzhou": 23,
	"廊坊": 24, "langfang": 24,
	"衡水": 25, "hengshui": 25,
	"太原": 26, "taiyuan": 26,
	"大同": 27, "datong": 27,
	"阳泉": 28, "yangquan": 28,
	"长治": 29, "changzhi": 29,
	"晋城": 30, "jincheng": 30,
	"朔州": 31, "shuozhou": 31,
	"晋中": 32, "jinzhong": 32,
	"运城": 33, "yuncheng": 33,
	"忻州": 34, "xinzhou": 34,
	"临汾": 35, "linfen": 35,
	"吕梁": 36, "lvliang": 36,
	"呼和浩特": 37, "hohhot": 37,
	"包头": 38, "baotou": 38,
	"乌海": 39, "wuhai": 39,
	"赤峰": 40, "chifeng": 40,
	"通辽": 41, "tongliao": 41,
	"鄂尔多斯": 42, "ordos": 42,
	"呼伦贝尔": 43, "hulunbuir": 43,
	"巴彦淖尔": 44, "bayannur": 44,
	"乌兰察布": 45, "ulanqab": 45,
	"香港": 333, "hongkong": 333,
	"澳门": 334, "macau": 334,
	"台北": 335, "taipei": 335,
	"高雄": 336, "kaohsiung": 336,
	"台中": 337, "taichung": 337,
	"台南": 338, "tainan": 338,
	"新竹": 339, "hsinchu": 339,
	"嘉义": 340, "chiayi": 340,
}

// CityCode resolves a city name to its device code: exact match first,
// then case-insensitive, then a best-effort substring match either
// direction. Unresolvable names map to UnknownCityCode.
func CityCode(name string) int {
	if name == "" {
		return UnknownCityCode
	}

	clean := strings.TrimSpace(name)
	if code, ok := cityCodes[clean]; ok {
		return code
	}

	lower := strings.ToLower(clean)
	if code, ok := cityCodes[lower]; ok {
		return code
	}

	for key, code := range cityCodes {
		if strings.Contains(key, lower) || strings.Contains(lower, key) {
			return code
		}
	}

	return UnknownCityCode
}
