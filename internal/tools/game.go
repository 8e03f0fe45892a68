package tools

import "context"

func GameTools(relay Chatter) []Spec {
	persona := func(id string) Handler {
		return func(ctx context.Context, c Call) (Output, error) {
			reply, err := relay.Chat(ctx, id, c.Args.String("message", ""), c.Args.Bool("restart"))
			if err != nil {
				return Output{}, err
			}
			return Visible("%s", reply), nil
		}
	}
	return []Spec{
		{
			Name:    "game.llama",
			Summary: "game.llama(message, restart) - Talk to Llama, the creative persona.",
			Manual: `Fantasy and world-building partner with its own history.
Params:
  message (str): what you say.
  restart (bool, optional): start a fresh conversation.`,
			Handler: persona("llama"),
		},
		{
			Name:    "game.oss",
			Summary: "game.oss(message, restart) - Talk to OSS, the critical persona.",
			Manual: `Analytical partner who favours open source thinking.
Params:
  message (str): what you say.
  restart (bool, optional): start a fresh conversation.`,
			Handler: persona("oss"),
		},
	}
}
