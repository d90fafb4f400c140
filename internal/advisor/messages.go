package advisor

// Fixed Urdu replies shown to the farmer when no model answer is available.
const (
	ReplyMissingProvider = "API کلیدیں غائب ہیں۔ براہ کرم سسٹم ایڈمن سے رابطہ کریں۔"
	ReplyEmpty           = "معذرت، سرور سے مناسب جواب حاصل نہیں ہو سکا۔"
	ReplyConnection      = "معذرت، انٹرنیٹ کنکشن میں مسئلہ ہے۔ براہ کرم کنکشن چیک کریں۔"
	ReplyTimeout         = "معذرت، سرور کا جواب موصول نہیں ہوا۔ براہ کرم دوبارہ کوشش کریں۔"
	ReplyUnauthorized    = "API کلیدیں غلط ہیں۔ براہ کرم سسٹم ایڈمن سے رابطہ کریں۔"
	ReplyRateLimited     = "سرور مصروف ہے۔ براہ کرم تھوڑی دیر بعد کوشش کریں۔"
	ReplyHTTP            = "معذرت، سرور سے جواب حاصل کرنے میں مسئلہ پیش آیا۔ براہ کرم دوبارہ کوشش کریں۔"
	ReplyUnexpected      = "معذرت، غیر متوقع مسئلہ پیش آیا۔ براہ کرم دوبارہ کوشش کریں۔"
)

// ReplyOffTopic is what the persona answers to non-agricultural questions.
const ReplyOffTopic = "میں زراعت کے بارے میں مدد کر سکتا ہوں، کیا آپ کو کسی فصل کے بارے میں کوئی سوال ہے؟"

// DefaultSystemPrompt is the Raa'ee persona.
const DefaultSystemPrompt = `آپ راعی ہیں - پاکستانی کسانوں کے لیے زرعی معاون۔

**آپ کا کردار:** زرعی مشورہ دینا
**زبان:** سادہ اردو
**موضوعات:** فصلوں، کیڑوں، بیماریوں، کھاد، پانی

**جواب دینے کا طریقہ:**
- زرعی سوال → مکمل جواب
- غیر زرعی سوال → "` + ReplyOffTopic + `"

**مثالیں:**
سوال: "گندم کی کھاد" → "گندم میں ڈی اے پی بوائی کے وقت اور یوریا 25-30 دن بعد ڈالیں۔"
سوال: "موٹرسائیکل" → "` + ReplyOffTopic + `"`

// Pieces of the user message.
const (
	contextHeader   = "دستیاب زرعی ڈیٹا:"
	questionHeader  = "درج ذیل سوال کا جواب دیں:"
	answerGuidance  = "جواب سادہ اردو میں ہو اور عملی ہو۔"
	noCropAvailable = "کسی مخصوص فصل کا ڈیٹا دستیاب نہیں۔"
)
