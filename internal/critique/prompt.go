package critique

// RubricPrompt is sent alongside every capture. It fixes the four rubric
// dimensions and the JSON shape Parse expects back.
const RubricPrompt = `You are an expert in generative art, procedural city generation, and urban satellite imagery.

Analyze this image of a "City at Night" generative art piece running on a 1.14" LCD (240x135 pixels).
The simulation shows city growth from above, like a satellite view at night, with glowing lights representing urban activity.

Rate the following on a scale of 1-10:

1. **organic_growth**: Does the city feel like it grew naturally? Are there believable road networks, districts, and sprawl patterns? Or does it look random and artificial?

2. **luminance_balance**: Is the brightness well-distributed? Are there appropriate bright cores (downtown) and dimmer periphery? Is it visually pleasing without being washed out or too dark?

3. **visual_interest**: Is there enough variation and detail to be engaging? Does it have focal points? Would someone want to keep watching it?

4. **density_distribution**: Does the density of lights make sense? Dense urban cores, medium suburbs, sparse rural edges?

Also provide:
- **critique**: 2-3 sentences of constructive feedback
- **technical_suggestions**: Specific, actionable code changes (e.g., "increase road branching probability", "add color temperature variation to lights")

Respond ONLY with valid JSON in this exact format:
{
    "scores": {
        "organic_growth": <1-10>,
        "luminance_balance": <1-10>,
        "visual_interest": <1-10>,
        "density_distribution": <1-10>
    },
    "overall_score": <1-10>,
    "critique": "<2-3 sentences>",
    "technical_suggestions": ["<suggestion 1>", "<suggestion 2>", "<suggestion 3>"]
}`
