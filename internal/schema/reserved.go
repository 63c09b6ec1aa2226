package schema

// Reserved keys, spec.md §6.2. All reserved keys are case-sensitive and
// start with "_". Inside a field's object, an underscore-prefixed key
// that is neither reserved nor a cast key is an error unless listed in
// that object's _ignore override (checked in processOverrides). Keys at
// the top level of a document are not checked this way: an unknown
// underscore-prefixed key there is walked as an ordinary field.
const (
	KeyType         = "_type"
	KeySlot         = "_slot"
	KeyPrefix       = "_prefix"
	KeyAccuracy     = "_accuracy"
	KeyAccPrefix    = "_acc_prefix"
	KeyIndex        = "_index"
	KeyIndexUUID    = "_index_uuid_field"
	KeyBoolTerm     = "_bool_term"
	KeyStore        = "_store"
	KeyRecurse      = "_recurse"
	KeyDynamic      = "_dynamic"
	KeyStrict       = "_strict"
	KeyNamespace    = "_namespace"
	KeyPartialPaths = "_partial_paths"
	KeyPartials     = "_partials"
	KeyData         = "_data"
	KeyValue        = "_value"
	KeyEndpoint     = "_endpoint"
	KeyScript       = "_script"
	KeySchema       = "_schema"
	KeySettings     = "_settings"
	KeyIgnore       = "_ignore"
	KeyLanguage     = "_language"
	KeyStemLanguage = "_stem_language"
	KeyStopStrategy = "_stop_strategy"
	KeyStemStrategy = "_stem_strategy"
	KeyError        = "_error"
	KeyWeight       = "_weight"
	KeyPosition     = "_position"
	KeyPositions    = "_positions"
	KeySpelling     = "_spelling"
	KeyNgram        = "_ngram"
	KeyCJKNgram     = "_cjk_ngram"
	KeyCJKWords     = "_cjk_words"
	KeyDateDetect     = "_date_detection"
	KeyDateTimeDetect = "_datetime_detection"
	KeyTimeDetect     = "_time_detection"
	KeyTimeDeltaDetect = "_timedelta_detection"
	KeyNumericDetect  = "_numeric_detection"
	KeyGeoDetect      = "_geo_detection"
	KeyPositiveDetect = "_positive_detection"
	KeyTextDetect     = "_text_detection"
	KeyUUIDDetect     = "_uuid_detection"
)

// reservedKeys is the closed set recognised by the walk. Cast-object
// keys (_keyword, _text, _integer, ...) are listed separately in
// castKeys below, which maps each to a type name (e.g. _float to
// "floating", _point to "geo"); isReserved accepts both sets.
var reservedKeys = map[string]bool{
	KeyType: true, KeySlot: true, KeyPrefix: true, KeyAccuracy: true, KeyAccPrefix: true,
	KeyIndex: true, KeyIndexUUID: true, KeyBoolTerm: true, KeyStore: true, KeyRecurse: true,
	KeyDynamic: true, KeyStrict: true, KeyNamespace: true, KeyPartialPaths: true, KeyPartials: true,
	KeyData: true, KeyValue: true, KeyEndpoint: true, KeyScript: true, KeySchema: true,
	KeySettings: true, KeyIgnore: true, KeyLanguage: true, KeyStemLanguage: true,
	KeyStopStrategy: true, KeyStemStrategy: true, KeyError: true, KeyWeight: true,
	KeyPosition: true, KeyPositions: true, KeySpelling: true, KeyNgram: true,
	KeyCJKNgram: true, KeyCJKWords: true, KeyDateDetect: true, KeyDateTimeDetect: true,
	KeyTimeDetect: true, KeyTimeDeltaDetect: true, KeyNumericDetect: true, KeyGeoDetect: true,
	KeyPositiveDetect: true, KeyTextDetect: true, KeyUUIDDetect: true,
}

// castKeys maps a reserved cast-object key (e.g. "_integer") to the
// FieldType it forces a value to be interpreted as (spec.md §6.2).
var castKeys = map[string]string{
	"_keyword": "keyword", "_text": "text", "_integer": "integer", "_float": "floating",
	"_boolean": "boolean", "_date": "date", "_datetime": "datetime", "_time": "time",
	"_timedelta": "timedelta", "_uuid": "uuid", "_geo": "geo", "_point": "geo",
	"_circle": "geo", "_polygon": "geo", "_chull": "geo", "_multipoint": "geo",
}
