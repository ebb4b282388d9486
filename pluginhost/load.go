package pluginhost

import "plugin"

// Factory symbol names every artifact must export exactly one of,
// depending on its declared role (spec §4.6).
const (
	ProducerFactorySymbol    = "NewProducer"
	TransformerFactorySymbol = "NewTransformer"
	ConsumerFactorySymbol    = "NewConsumer"
)

// LoadProducer opens a native plug-in artifact and resolves its
// NewProducer factory.
func LoadProducer(path string) (Producer, error) {
	sym, err := lookupFactory(path, ProducerFactorySymbol)
	if err != nil {
		return nil, err
	}
	factory, ok := sym.(func() Producer)
	if !ok {
		return nil, &PluginError{Op: "resolve factory", Path: path, Err: errWrongSignature(ProducerFactorySymbol)}
	}
	return factory(), nil
}

// LoadTransformer opens a native plug-in artifact and resolves its
// NewTransformer factory.
func LoadTransformer(path string) (Transformer, error) {
	sym, err := lookupFactory(path, TransformerFactorySymbol)
	if err != nil {
		return nil, err
	}
	factory, ok := sym.(func() Transformer)
	if !ok {
		return nil, &PluginError{Op: "resolve factory", Path: path, Err: errWrongSignature(TransformerFactorySymbol)}
	}
	return factory(), nil
}

// LoadConsumer opens a native plug-in artifact and resolves its
// NewConsumer factory.
func LoadConsumer(path string) (Consumer, error) {
	sym, err := lookupFactory(path, ConsumerFactorySymbol)
	if err != nil {
		return nil, err
	}
	factory, ok := sym.(func() Consumer)
	if !ok {
		return nil, &PluginError{Op: "resolve factory", Path: path, Err: errWrongSignature(ConsumerFactorySymbol)}
	}
	return factory(), nil
}

func lookupFactory(path, symbol string) (plugin.Symbol, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, &PluginError{Op: "open artifact", Path: path, Err: err}
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, &PluginError{Op: "lookup factory " + symbol, Path: path, Err: err}
	}
	return sym, nil
}

type wrongSignatureError struct{ symbol string }

func (e wrongSignatureError) Error() string { return "exported symbol " + e.symbol + " has the wrong signature" }

func errWrongSignature(symbol string) error { return wrongSignatureError{symbol: symbol} }
